// Package retry runs remote calls under an exponential backoff policy.
//
// Only rate-limited and transient failures (as classified by
// services.Retryable) are retried; every other error propagates on the first
// attempt. Jitter comes from crypto/rand so concurrent workers spread out.
package retry
