// Package testsupport holds helpers shared by package tests: a temp-rooted
// configuration, batch file seeding, a scripted text service, a fixed
// proposition source, and a journal opener with cleanup.
package testsupport
