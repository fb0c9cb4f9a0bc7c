// Package engine runs function requests and records them as invocations.
//
// Invoke runs a request on the caller's goroutine; Submit records it as
// pending and runs it in the background. Either way the invocation moves
// through pending, running and a terminal status in the store, and every
// transition is published to the EventBroker for real-time subscribers.
package engine
