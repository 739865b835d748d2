// Package writeback provides a write-behind data layer: reads are served
// from a fast cache, writes are accepted into the cache plus a durable
// event log, and batch workers flush the log to the document store in
// the background.
//
// # Philosophy: Absorb Writes, Flush in Bulk
//
// The document store is the system of record but never sits on the write
// path. A mutation is acknowledged as soon as two things hold:
//
//  1. The fast store reflects the new value (reads see it immediately).
//  2. The event log has accepted an encrypted operation record.
//
// Durable persistence happens later, when a worker drains a batch of
// records and applies them to the document store in one bulk statement.
// "Accepted" therefore means "cached and logged", not "persisted" - the
// log is the durability boundary, the store catches up.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│           Catalog Facade            │  Create, Update, Delete,
//	│   (per-entity: user/brand/product)  │  Get, List
//	└──────┬───────────────────────┬──────┘
//	       │ reads                 │ writes
//	       ↓                       ↓
//	┌─────────────┐       ┌───────────────┐
//	│ Fast Store  │       │   Event Log   │  one topic per
//	│ (KV/memory) │       │ (wb.<entity>. │  entity × operation
//	└──────┬──────┘       │  <op>.<id>)   │
//	       │ miss         └───────┬───────┘
//	       ↓                      ↓ durable consumers
//	┌─────────────┐       ┌───────────────┐
//	│  Document   │ ◄──── │ Batch Workers │  flush at size
//	│    Store    │ bulk  │ (accumulator  │  or idle timeout
//	│ (postgres/  │ write │  per topic)   │
//	│  sqlite)    │       └───────────────┘
//	└─────────────┘
//
// # Write Path
//
// Every mutation becomes an operation record: entity id, operation kind,
// unique message id, unix-millisecond timestamp, and a sealed payload
// (AES-256-GCM over JSON). Records travel on per-entity, per-operation
// topics:
//
//	wb.user.create  wb.user.update  wb.user.delete
//	wb.brand.create wb.brand.update wb.brand.delete
//	wb.product.create wb.product.update wb.product.delete
//
// The broker deduplicates on message id within the duplicate window, so
// a republished record lands once. Updates carry typed patches - only
// the columns the caller set are written, everything else is untouched.
//
// # Read Path
//
// Reads are cache-aside: fast store first, document store on a miss,
// refresh the cache on the way back. Fast-store failures degrade to
// document-store reads and never surface to callers; document-store
// failures during read-through always do. List pages are cached whole
// under a page key.
//
// # Flush Semantics
//
// One accumulator per topic gathers records and flushes when the batch
// reaches its configured size or has been idle past the timeout,
// whichever comes first. Workers attach in dependency order - creates
// and updates parent-first (user, brand, product), deletes child-first -
// so a child record never lands before its parent or outlives it.
//
// A failed bulk write is logged, counted, and dropped; the pipeline
// keeps going. The event log retains records for the configured
// retention window, which is the recovery horizon for dropped batches.
//
// # Packages
//
// Data plane:
//   - catalog: per-entity facade combining cache writes with publishes
//   - cacheaside: generic cache-aside store over fast store + repository
//   - eventlog: operation records, topic set, registry, publisher
//   - batcher: accumulator and per-operation bulk processors
//   - worker: orchestrator (ordered start, best-effort stop)
//
// Storage:
//   - docstore: bun-backed document store and generic repository
//   - faststore: fast-store contract with KV and in-memory bindings
//   - entity: entity types, typed patches, id generation
//
// Infrastructure:
//   - natsclient: broker connection, streams, consumers, KV buckets
//   - config: JSON configuration with WRITEBACK_* overrides
//   - errors: classified error taxonomy (validation, configuration,
//     infrastructure, flush)
//   - health: per-resource probing with degraded/unhealthy escalation
//   - metric: prometheus registry, pipeline metrics, ops HTTP server
//   - pkg/crypt: payload encryption gate
//   - pkg/retry: backoff policies
//   - pkg/timestamp: unix-millisecond helpers
//
// # Usage
//
// Embedding the data layer:
//
//	broker, _ := natsclient.NewClient("nats://localhost:4222")
//	_ = broker.Connect(ctx)
//
//	store := docstore.NewStore(cfg.DocStore)
//	fast, _ := faststore.New(ctx, cfg.FastStore, broker)
//	gate := crypt.New(cfg.Security.SecretKeyEnv)
//
//	cat, _ := catalog.New(catalog.Deps{
//	    Store:     store,
//	    Fast:      fast,
//	    Publisher: eventlog.NewPublisher(broker, gate),
//	    Codec:     gate,
//	    Root:      cfg.Topics.Root,
//	})
//
//	id, _ := cat.Users.Create(ctx, &entity.User{Email: "ada@example.com"})
//	user, _ := cat.Users.Get(ctx, id)
//
// The flush side runs as its own process:
//
//	# flush daemon with built-in defaults
//	WRITEBACK_SECRET_KEY=... ./bin/writebackd
//
//	# custom config, validation only
//	./bin/writebackd --config=/etc/writeback/config.json --validate
//
// The daemon provisions topics, attaches the workers, probes the broker,
// document store, and fast store on an interval, and serves /healthz and
// /metrics on the ops listener.
//
// # Design Principles
//
// Capability interfaces:
//   - Components consume narrow interfaces (Producer, Admin,
//     ConsumerGroup, FastStore) and concrete clients satisfy them
//   - Tests swap fakes without touching the broker
//
// Explicit dependencies:
//   - No globals; every component takes its logger, metrics, and
//     backing stores at construction
//
// Bounded work:
//   - Batches cap memory per topic; flushes are one statement each
//   - Failures drop the batch rather than wedging the consumer
//
// Classified failures:
//   - Validation errors are the caller's, configuration errors abort
//     startup, infrastructure errors propagate and retry, flush errors
//     terminate only the batch
package writeback
