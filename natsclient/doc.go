// Package natsclient manages the process-wide NATS connection used by
// the write-behind pipeline for both the event log and the broker-backed
// fast store.
//
// # Connection management
//
// Client wraps a single NATS connection plus its JetStream context. The
// connection is established once through Connect and shared; components
// never dial the broker themselves. A circuit breaker counts consecutive
// failures and, past the threshold, rejects operations with
// ErrCircuitOpen while backing off exponentially. Successful operations
// reset the breaker.
//
//	client, err := natsclient.NewClient(url,
//		natsclient.WithClientName("writebackd"),
//		natsclient.WithCircuitBreakerThreshold(5),
//		natsclient.WithMetrics(registry),
//	)
//	if err != nil {
//		return err
//	}
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	defer client.Close(ctx)
//
// # JetStream
//
// EnsureStream creates or updates streams idempotently. PublishMsg
// publishes messages with headers; a Nats-Msg-Id header makes the broker
// deduplicate retried publishes within the stream's duplicate window.
// ConsumeStream attaches a durable consumer and delivers messages to the
// handler one at a time, acknowledging each after the handler returns.
//
// # Key-value
//
// CreateKeyValueBucket provisions a bucket (tolerating creation races
// between processes) and KVStore layers simple Get/Put/Delete operations
// on top. Writes are last-writer-wins; entry expiry follows the bucket
// TTL.
//
// # Health and metrics
//
// The client monitors the connection in the background, reports changes
// through OnHealthChange, and, when WithMetrics is set, exports
// connection state, RTT, reconnect counts, and per-stream/consumer
// statistics.
package natsclient
