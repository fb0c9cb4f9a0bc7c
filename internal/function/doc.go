// Package function holds the query functions a dashboard can call and the
// registry the dispatcher resolves them through.
//
// Simple functions (series, variables, entity_series) execute directly
// against a datasource. Composite functions (multi_series) decompose into
// calls of simple functions that the dispatcher runs concurrently.
package function
