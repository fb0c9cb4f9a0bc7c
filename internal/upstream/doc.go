// Package upstream defines the interface to the remote monitoring APIs that
// vantage functions read from, along with the query and result types
// exchanged with them and a registry of named datasources.
package upstream
