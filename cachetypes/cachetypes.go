// Package cachetypes holds the error sentinel shared by resourcecache's
// in-process and distributed-mirror backends.
package cachetypes

import "errors"

// ErrCachedDataNotFound indicates the requested key is not present in the cache.
var ErrCachedDataNotFound = errors.New("cachetypes: cached data not found")
