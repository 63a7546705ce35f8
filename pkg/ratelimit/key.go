package ratelimit

import "net/http"

// KeyFunc identifies the caller of a request. An empty key skips limiting.
type KeyFunc func(*http.Request) string

// FirstOf returns the first non-empty key of fns, tagged with its position
// so keys of different sources never collide.
func FirstOf(fns ...KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		for i, fn := range fns {
			if key := fn(r); key != "" {
				return string(rune('a'+i)) + ":" + key
			}
		}
		return ""
	}
}
