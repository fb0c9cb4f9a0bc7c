package model

import "strings"

// ClientIdentity names the upstream account a request is made under. It is
// comparable and used directly as a map key for per-identity resources.
type ClientIdentity struct {
	Datasource string `json:"datasource"`
	Account    string `json:"account,omitempty"`
}

// Key renders the identity as a string that is unique per identity. Neither
// field may contain a NUL byte for the rendering to stay injective, which
// holds for names coming from configuration and HTTP headers.
func (c ClientIdentity) Key() string {
	return c.Datasource + "\x00" + c.Account
}

// String is the human-readable form used in logs.
func (c ClientIdentity) String() string {
	if c.Account == "" {
		return c.Datasource
	}
	return c.Datasource + "/" + c.Account
}

// Valid reports whether the identity names a datasource.
func (c ClientIdentity) Valid() bool {
	return strings.TrimSpace(c.Datasource) != ""
}
