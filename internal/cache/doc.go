// Package cache provides the result cache that sits in front of every remote
// call: a size-bounded LRU whose entries also expire on two clocks, one reset
// by writes and one reset by reads.
//
// GetOrCompute collapses concurrent misses for the same key into a single
// computation; every waiter receives that computation's value or error.
// Failed computations are never stored, so the next caller retries.
//
// Keys are opaque strings. Use Key to derive one from a client identity and a
// request shape so that callers under different upstream accounts never share
// entries.
package cache
