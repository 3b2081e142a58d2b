// Package llm provides the remote text generation clients used by the
// generation and refinement stages.
//
// # Providers
//
// AnthropicClient (default) talks to the Messages API, OpenRouterClient to an
// OpenAI-compatible chat completions endpoint, and GeminiClient to Google
// Gemini through the generative-ai-go SDK. NewService picks one from Config.
//
// # Failure classification
//
// Every error returned by Generate is classifiable with services.KindOf:
//
//   - HTTP 429 and gRPC ResourceExhausted are rate limited.
//   - HTTP 408, 409, 5xx and 529, network timeouts and resets, undecodable
//     bodies, and empty model output are transient.
//   - Everything else, including caller cancellation, is fatal.
//
// Clients never retry. Backoff is owned by package retry so that one policy
// governs every remote call.
package llm
