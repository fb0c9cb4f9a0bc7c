// Package dispatch turns one front-end request into the calls it is made of,
// runs them, and reassembles their outputs.
//
// A request decomposes into zero, one or many calls. Zero calls produce an
// empty response. One call runs directly on the caller's goroutine. Many
// calls run concurrently on the function executor of the caller's client
// identity and their outputs are concatenated in decomposition order, no
// matter in which order they complete.
package dispatch
