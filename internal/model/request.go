package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// TimeRange is the dashboard time window a request covers.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Request is a single function call coming from the front end, or one of the
// sub-requests a composite function decomposes into.
type Request struct {
	Function string          `json:"function"`
	Identity ClientIdentity  `json:"identity"`
	Range    TimeRange       `json:"range"`
	Input    json.RawMessage `json:"input,omitempty"`
}

// InputKey identifies the request by content. Two requests with the same
// function, identity, range and (whitespace-insensitive) input share a key.
func (r Request) InputKey() string {
	h := sha256.New()
	h.Write([]byte(r.Function))
	h.Write([]byte{0})
	h.Write([]byte(r.Identity.Key()))
	h.Write([]byte{0})
	h.Write([]byte(r.Range.From.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte{0})
	h.Write([]byte(r.Range.To.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte{0})

	var compact bytes.Buffer
	if err := json.Compact(&compact, r.Input); err == nil {
		h.Write(compact.Bytes())
	} else {
		h.Write(r.Input)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// WithInput returns a copy of r for another function and input, keeping the
// identity and time range.
func (r Request) WithInput(function string, input any) (Request, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return Request{}, err
	}
	sub := r
	sub.Function = function
	sub.Input = raw
	return sub, nil
}
