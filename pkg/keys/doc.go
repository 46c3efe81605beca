// Package keys fetches public encryption keys from the key service and serves
// them from a persistent store.
//
// # Fetching
//
// A Fetcher issues one GET against the configured key list URL through the
// retrying client and parses a body of the form
//
//	{"keys": [{"id": "<identifier>", "key": "<base64 public key>"}]}
//
// Every key is created at the fetch time and expires after the TTL derived
// from Cache-Control max-age minus Age (see package cache), or after the
// configured default max-age when the server gives no usable TTL.
//
// # Serving
//
//	manager, err := keys.NewManager(keys.ManagerConfig{
//		Fetcher: keys.NewFetcher(httpClient, keys.FetcherConfig{
//			FetchURL:   "https://keys.example.com/v1/keys",
//			RetryLimit: 3,
//		}),
//		Store: memory.New(),
//	})
//
//	active := manager.GetOrFetchActiveKeys(ctx, keys.KeyTypeEncryption, 1)
//
// GetOrFetchActiveKeys answers from the store when it holds an active key.
// Otherwise it forces a fetch and waits for it at most ForcedFetchTimeout.
//
// A periodic job calls FetchAndPersistActiveKeys with scheduled set, which
// additionally deletes expired keys once the new ones are persisted.
//
// # Metrics
//
//   - keyfetch_fetches_total{outcome} - Fetch pipeline runs
//   - keyfetch_keys_fetched_total{key_type} - Parsed keys
//   - keyfetch_ttl_fallback_total - Responses without usable TTL
//   - keyfetch_key_reads_total{result} - Cache hits and misses
//   - keyfetch_forced_fetches_total{outcome} - Fetch-on-miss outcomes
//   - keyfetch_keys_evicted_total - Expired keys deleted
//   - keyfetch_store_errors_total{operation} - Store failures
package keys
