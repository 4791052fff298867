// Package goTrust is an authentication trust engine: JWT issuing and
// verification with revocation, wildcard RBAC with conditional grants,
// device fingerprinting with trust scoring, a bounded session
// lifecycle, and rate guarding with single-use action tokens.
//
// The engine is assembled through the Builder. Redis carries the shared
// fast path (sessions, device records, counters, revocations); an
// optional Persistence implementation, such as pgstore, keeps the
// authoritative copy and serves reads when the cache misses.
//
//	engine, err := goTrust.NewBuilder(goTrust.ConfigFromEnv()).
//		WithRedis(rdb).
//		WithCredentialStore(store).
//		WithLogger(logger).
//		Build()
//
// Verification is fail-closed throughout: token checks, permission
// checks, and rate checks deny on any ambiguity or store outage, and
// callers get uniform errors while the concrete reasons stay in the
// server-side log and audit trail.
package goTrust
