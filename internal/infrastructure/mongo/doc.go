// Package mongo provides the shared MongoDB connection store for Clipstream Core.
//
// The hosting execution model may re-enter request handling many times
// within one logical process (hot reload in development, repeated
// invocations behind a serverless-style runner). Without coalescing,
// each entry would open a fresh pooled session and rapidly exhaust the
// server's connection limit. The Store memoises the established client
// and merges concurrent establishment attempts into one:
//
//   - A cached client is returned immediately, with no I/O.
//   - Concurrent first-time callers share a single in-flight attempt and
//     all observe its single outcome.
//   - A failed attempt is not cached: the error fans out to every waiter
//     and the next call retries from scratch.
//   - A successful client is kept for the process lifetime. Transient
//     link drops are left to the driver's own pool recovery; the store
//     never re-dials on its own.
//
// This is the only package permitted to open sessions to the backing
// store. Repositories take a *Store and call Collection before every
// operation.
//
// # Usage
//
//	store, err := mongo.New(cfg.Mongo, logger)
//	if err != nil {
//	    return err // fatal: configuration is invalid
//	}
//	defer store.Close(ctx)
//
//	coll, err := store.Collection(ctx, "videos")
package mongo
