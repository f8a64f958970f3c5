// Package syncflow moves rows from SQL sources into destinations on a
// schedule.
//
// A Sync pairs a source query with a destination stream. Each execution
// of a sync is a SyncRun that walks through a fixed set of states
// (pending, started, querying, queued, in progress, then success, failed
// or canceled) while the pipeline reads the source page by page and writes
// each page through the destination's write chain:
//
//	RateLimiter -> Fullrefresher -> destination.Write
//
// # Packages
//
//   - pkg/syncjob: Sync and SyncRun models, state machines and the service
//   - pkg/connector: connector interfaces, registry, SQL source and destination
//   - pkg/connector/writer: rate limiting and full refresh decorators
//   - pkg/scheduler: cron schedules that trigger sync runs
//   - internal/pipeline: the batch runner and executor
//   - pkg/config: YAML configuration with environment overrides
//   - pkg/notify: failure notices over the log and Kafka
//
// # Quick Start
//
//	syncflow validate --config syncflow.yaml
//	syncflow run --config syncflow.yaml --sync orders
//	syncflow schedule --config syncflow.yaml
package syncflow
