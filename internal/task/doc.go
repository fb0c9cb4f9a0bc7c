// Package task fans a batch of independent units of work out onto a bounded
// pool and gathers their results.
//
// A Runner never spawns unbounded goroutines of its own: every unit goes
// through a Pool, so a composite request's parallelism is capped by the pool
// it is given. Each unit runs with its own span and a context logger tagged
// with the unit's operation and input identity.
package task
