// Package errors provides standardized error handling patterns for writeback components.
//
// # Overview
//
// The errors package implements a four-class error classification system designed
// for the write-behind pipeline: Infrastructure (broker or store unreachable,
// retryable), Validation (bad caller input, non-retryable), Configuration
// (missing or invalid settings, fatal at the call site), and Flush (a bulk write
// failed, terminal for the affected batch).
//
// This classification enables consistent handling decisions throughout the
// pipeline without hardcoded error string matching:
//
//   - Infrastructure: surfaced on publish and read-through paths, swallowed for
//     fast-store reads and writes where the document store is the fallback
//   - Validation: returned to the caller unchanged (pagination bounds, empty ids)
//   - Configuration: aborts startup when detected early, fails the call otherwise
//   - Flush: logged and counted; the batch is dropped, never requeued
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Four wrapper functions provide classification-aware wrapping:
//
//	errors.WrapInfrastructure(err, "Publisher", "Publish", "append record")
//	errors.WrapValidation(err, "Store", "ListPage", "check bounds")
//	errors.WrapConfiguration(err, "Gate", "Seal", "load secret key")
//	errors.WrapFlush(err, "Accumulator", "Flush", "bulk insert")
//
// The generic Wrap() preserves the original error's classification:
//
//	errors.Wrap(err, "Component", "Method", "action")
//
// # Standard Error Variables
//
// Pre-defined error variables cover common conditions, organized by category:
//
//   - Component lifecycle: ErrAlreadyStarted, ErrNotStarted, ErrShuttingDown
//   - Connection issues: ErrNoConnection, ErrConnectionLost, ErrConnectionTimeout
//   - Lookups: ErrNotFound, ErrKeyNotFound, ErrTopicNotFound, ErrBucketNotFound
//   - Configuration: ErrInvalidConfig, ErrMissingConfig, ErrMissingSecretKey
//   - Validation: ErrInvalidPage, ErrInvalidLimit, ErrEmptyID
//
// Use these variables instead of creating custom error messages so callers can
// branch with errors.Is.
//
// # Retry Configuration
//
// RetryConfig carries classification-aware retry policy and bridges into the
// pkg/retry framework:
//
//	config := errors.DefaultRetryConfig()
//	err := retry.Do(ctx, config.ToRetryConfig(), func() error {
//	    return client.Connect(ctx)
//	})
//
// Only Infrastructure-class errors are retried; Validation, Configuration, and
// Flush errors are never worth a second attempt.
//
// # Integration with errors.As/Is
//
// All error types support standard library error inspection; classification is
// preserved through wrapping chains:
//
//	wrapped := errors.WrapInfrastructure(errors.ErrConnectionTimeout, "Client", "Connect", "dial")
//	errors.IsInfrastructure(wrapped) // true
//	errors.Is(wrapped, errors.ErrConnectionTimeout) // true
package errors
