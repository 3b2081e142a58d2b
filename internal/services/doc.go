// Package services defines the shared failure taxonomy and context helpers
// consumed by the pipeline stages and the remote text service clients.
//
// Key responsibilities:
//   - Error kinds (rate limited, transient, fatal, not found, parse,
//     configuration) carried by *Error so retry and controller code branch on
//     the kind instead of catching broadly.
//   - KindOf / Retryable helpers that classify any error, including foreign
//     types implementing ErrorClassifier.
//   - Context helpers that stamp run IDs, batch IDs, and stage labels for
//     structured logging.
package services
