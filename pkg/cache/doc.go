// Package cache derives key lifetimes from HTTP caching headers.
//
// The key service advertises how long a key list may be cached through the
// standard Cache-Control max-age directive. Intermediate caches report how long
// they already held the response through the Age header. The remaining
// lifetime is the difference:
//
//	ttl := cache.ResolveTTLSeconds(resp.Header())
//	if ttl <= 0 {
//		ttl = defaultMaxAgeSeconds
//	}
//
// A non-positive result means the server provided no usable lifetime and the
// caller must substitute its configured default.
package cache
