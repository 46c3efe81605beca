// Package keystore groups the keys.Store implementations.
//
//   - memory: process-local map, lost on restart
//   - sqlite: single-file database, table encryption_keys
//   - redis: shared store for several daemon replicas
//
// Every backend upserts by key identifier, returns active keys furthest
// expiry first, and only treats keys whose expiry is in the past as expired.
// The storetest package holds the contract tests all backends run.
package keystore
