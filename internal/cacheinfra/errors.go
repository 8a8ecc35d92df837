package cacheinfra

import "errors"

// ErrMiss is returned by every store when a key is absent. Counter increments
// on an absent key return it too instead of creating the counter.
var ErrMiss = errors.New("cache: miss")
