// Package refine implements the stage transform that asks the remote text
// service for an improved version of each proposition.
//
// Every request first waits on the shared pacer, then runs through the retry
// executor; blank model output is treated as transient and retried.
package refine
