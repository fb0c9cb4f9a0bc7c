package model

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"
)

// crockfordBase32 matches valid ULID strings (26 chars, Crockford Base32 alphabet).
var crockfordBase32 = regexp.MustCompile(`^[0123456789ABCDEFGHJKMNPQRSTVWXYZ]{26}$`)

func TestNewIDFormat(t *testing.T) {
	id := NewID()
	if !crockfordBase32.MatchString(id) {
		t.Errorf("NewID() = %q, does not match Crockford Base32 ULID format", id)
	}
}

func TestNewIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("NewID() produced duplicate: %s", id)
		}
		seen[id] = true
	}
}

func TestValidTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusPending, StatusCompleted, false},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusCancelled, true},
		{StatusCompleted, StatusRunning, false},
		{StatusFailed, StatusCompleted, false},
		{"bogus", StatusRunning, false},
	}
	for _, tt := range tests {
		if got := ValidTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("ValidTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestClientIdentityKeyDistinguishesFields(t *testing.T) {
	a := ClientIdentity{Datasource: "ab", Account: "c"}
	b := ClientIdentity{Datasource: "a", Account: "bc"}
	if a.Key() == b.Key() {
		t.Errorf("Key() collided for %v and %v", a, b)
	}
	if got := a.String(); got != "ab/c" {
		t.Errorf("String() = %q, want %q", got, "ab/c")
	}
	if got := (ClientIdentity{Datasource: "prod"}).String(); got != "prod" {
		t.Errorf("String() = %q, want %q", got, "prod")
	}
}

func TestInputKeyIgnoresWhitespace(t *testing.T) {
	base := Request{
		Function: "series",
		Identity: ClientIdentity{Datasource: "prod"},
		Range: TimeRange{
			From: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC),
		},
		Input: json.RawMessage(`{"metric":"cpu"}`),
	}
	spaced := base
	spaced.Input = json.RawMessage(`{ "metric" : "cpu" }`)

	if base.InputKey() != spaced.InputKey() {
		t.Error("InputKey() differs for inputs that only differ in whitespace")
	}

	other := base
	other.Input = json.RawMessage(`{"metric":"mem"}`)
	if base.InputKey() == other.InputKey() {
		t.Error("InputKey() equal for different inputs")
	}

	otherAccount := base
	otherAccount.Identity.Account = "team-a"
	if base.InputKey() == otherAccount.InputKey() {
		t.Error("InputKey() equal for different identities")
	}
}

func TestWithInputKeepsIdentityAndRange(t *testing.T) {
	parent := Request{
		Function: "multi_series",
		Identity: ClientIdentity{Datasource: "prod", Account: "ops"},
		Range:    TimeRange{From: time.Unix(0, 0), To: time.Unix(60, 0)},
	}

	sub, err := parent.WithInput("series", map[string]string{"metric": "cpu"})
	if err != nil {
		t.Fatalf("WithInput: %v", err)
	}
	if sub.Function != "series" {
		t.Errorf("Function = %q, want %q", sub.Function, "series")
	}
	if sub.Identity != parent.Identity {
		t.Errorf("Identity = %v, want %v", sub.Identity, parent.Identity)
	}
	if !sub.Range.From.Equal(parent.Range.From) || !sub.Range.To.Equal(parent.Range.To) {
		t.Errorf("Range = %v, want %v", sub.Range, parent.Range)
	}
	if string(sub.Input) != `{"metric":"cpu"}` {
		t.Errorf("Input = %s, want %s", sub.Input, `{"metric":"cpu"}`)
	}
}

func TestNewInvocationIsPending(t *testing.T) {
	req := Request{Function: "series", Identity: ClientIdentity{Datasource: "prod", Account: "ops"}}
	inv := NewInvocation(req)

	if inv.Status != StatusPending {
		t.Errorf("Status = %q, want %q", inv.Status, StatusPending)
	}
	if inv.Datasource != "prod" || inv.Account != "ops" {
		t.Errorf("identity = %s/%s, want prod/ops", inv.Datasource, inv.Account)
	}
	if inv.InputHash != req.InputKey() {
		t.Errorf("InputHash = %q, want %q", inv.InputHash, req.InputKey())
	}
	if inv.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}
}
