// Package executor owns the bounded worker pools that every function runs on.
//
// Each upstream client identity gets a PoolPair: one fixed-size executor for
// function-level tasks and one for query-level tasks. Function tasks routinely
// block on query tasks they fanned out; keeping the two roles on separate
// pools means a saturated function pool can never starve the query tasks it is
// waiting for.
//
// Pairs are created lazily, at most once per identity even under concurrent
// first access, and dropped from the Registry after a retention window with
// no lookups. Dropping a pair only affects future lookups: tasks already
// handed to its executors run to completion.
package executor
