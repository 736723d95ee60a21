// Package main hosts the FROST crawler service entrypoint.
//
// Architecture overview:
//   - Crawl cycle: internal/service.Service runs discovery, lists the stored datastream ids and hands them to the
//     dispatcher, then sleeps until one interval after the cycle started. When the id listing fails the next cycle
//     starts after crawl.retry_interval instead.
//   - Discovery: internal/discovery pages through /Datastreams with the Thing expanded, classifies each datastream
//     (internal/classify), derives its centroid and specialization (internal/specialize) and saves it in one
//     transaction. A failing datastream is logged and skipped.
//   - Ingest: a bounded in-memory queue feeds a fixed worker pool sized by crawl.workers. Each worker runs the
//     internal/ingest state machine for one datastream: resume from the newest stored timestamp, fetch newer
//     observations newest first, coerce results (internal/coerce), drop duplicates and commit the batch atomically.
//   - Upstream: internal/frost wraps Colly with basic auth, jittered retries and a per-host token bucket
//     (internal/policy/ratelimit). Every fetched page can be archived raw to GCS or a local directory.
//   - Persistence: PostgreSQL with PostGIS via pgx. db.migrate=true creates the schema at startup.
//   - Operator surface: /healthz, /readyz, /metrics and /v1/cycles/last on server.port. A cycle summary is published
//     to Pub/Sub when pubsub.topic_name is set.
//
// Operational notes:
//   - SIGINT/SIGTERM cancel the cycle. Batches already fetched are still committed, bounded by crawl.commit_timeout.
//   - Configuration comes from an optional file (-config) and FROSTCRAWLER_* environment variables, e.g.
//     FROSTCRAWLER_DB_DSN, FROSTCRAWLER_FROST_USERNAME, FROSTCRAWLER_CRAWL_WORKERS.
//   - Run locally: go run ./cmd/frostcrawler -config config.yaml
package main
