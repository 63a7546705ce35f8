// Package cache provides a size bounded LRU cache whose entries expire
// after a fixed time to live.
//
//	c := cache.New[string, string](1024, 10*time.Minute)
//	c.Put("ctm_01", "jo@example.com")
//	email, ok := c.Get("ctm_01")
//
// A zero ttl keeps entries until they are evicted. The cache is safe for
// concurrent use.
package cache
