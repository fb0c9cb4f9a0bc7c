package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/seantiz/vantage/internal/dispatch"
	"github.com/seantiz/vantage/internal/function"
	"github.com/seantiz/vantage/internal/model"
	"github.com/seantiz/vantage/internal/store"
	"github.com/seantiz/vantage/internal/upstream"
)

const window = `"from":"2026-01-01T00:00:00Z","to":"2026-01-01T01:00:00Z"`

func TestQuerySeries(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body := `{"function":"series","datasource":"prod",` + window + `,"input":{"metric":"cpu.usage","step_seconds":300}}`
	resp := postQuery(t, ts, "/v1/query", "ops", body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got queryResponse
	decodeBody(t, resp, &got)

	if len(got.InvocationID) != 26 {
		t.Errorf("invocation_id length = %d, want 26", len(got.InvocationID))
	}
	if got.SubOperations != 1 {
		t.Errorf("sub_operations = %d, want 1", got.SubOperations)
	}
	if len(got.Outputs) != 1 || got.Outputs[0].Series == nil {
		t.Fatalf("outputs = %+v, want one series", got.Outputs)
	}
	s := got.Outputs[0].Series
	if s.Name != "cpu.usage" {
		t.Errorf("series name = %q, want cpu.usage", s.Name)
	}
	if s.Labels["account"] != "ops" {
		t.Errorf("account label = %q, want ops", s.Labels["account"])
	}
	if len(s.Points) != 13 {
		t.Errorf("points = %d, want 13", len(s.Points))
	}
}

func TestQueryMultiSeriesKeepsMetricOrder(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	metrics := []string{"http.errors", "cpu.usage", "mem.free", "http.requests"}
	body := fmt.Sprintf(`{"function":"multi_series","datasource":"prod",%s,"input":{"metrics":["%s","%s","%s","%s"]}}`,
		window, metrics[0], metrics[1], metrics[2], metrics[3])
	resp := postQuery(t, ts, "/v1/query", "", body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got queryResponse
	decodeBody(t, resp, &got)

	var names []string
	for _, o := range got.Outputs {
		names = append(names, o.Series.Name)
	}
	if diff := cmp.Diff(metrics, names); diff != "" {
		t.Errorf("series order mismatch (-want +got):\n%s", diff)
	}
	if got.SubOperations != len(metrics) {
		t.Errorf("sub_operations = %d, want %d", got.SubOperations, len(metrics))
	}
}

func TestQueryDefaultsTimeRange(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postQuery(t, ts, "/v1/query", "", `{"function":"series","datasource":"prod","input":{"metric":"mem.used"}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestQueryRejectsBadRequests(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{"function":`, http.StatusBadRequest},
		{"missing function", `{"datasource":"prod"}`, http.StatusBadRequest},
		{"missing datasource", `{"function":"series","input":{"metric":"cpu.usage"}}`, http.StatusBadRequest},
		{"unknown function", `{"function":"nope","datasource":"prod",` + window + `}`, http.StatusBadRequest},
		{"invalid input", `{"function":"series","datasource":"prod",` + window + `,"input":{"metric":""}}`, http.StatusBadRequest},
		{"unknown field", `{"function":"series","datasource":"prod",` + window + `,"input":{"metric":"cpu.usage","bogus":1}}`, http.StatusBadRequest},
		{"inverted range", `{"function":"series","datasource":"prod","from":"2026-01-01T01:00:00Z","to":"2026-01-01T00:00:00Z","input":{"metric":"cpu.usage"}}`, http.StatusBadRequest},
		{"unknown datasource", `{"function":"series","datasource":"nowhere",` + window + `,"input":{"metric":"cpu.usage"}}`, http.StatusNotFound},
		{"unknown metric", `{"function":"series","datasource":"prod",` + window + `,"input":{"metric":"disk.iops"}}`, http.StatusBadGateway},
	}

	for _, tt := range tests {
		resp := postQuery(t, ts, "/v1/query", "", tt.body)
		if resp.StatusCode != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, resp.StatusCode, tt.want)
		}
		var body errorResponse
		decodeBody(t, resp, &body)
		if body.Error == "" {
			t.Errorf("%s: error message is empty", tt.name)
		}
	}
}

func TestQueryFailureIsRecorded(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body := `{"function":"multi_series","datasource":"prod",` + window + `,"input":{"metrics":["cpu.usage","disk.iops"]}}`
	resp := postQuery(t, ts, "/v1/query", "", body)

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	var got errorResponse
	decodeBody(t, resp, &got)
	if got.InvocationID == "" {
		t.Fatal("error response has no invocation_id")
	}

	inv, err := srv.store.GetInvocation(context.Background(), got.InvocationID)
	if err != nil {
		t.Fatalf("GetInvocation: %v", err)
	}
	if inv.Status != model.StatusFailed {
		t.Errorf("Status = %q, want failed", inv.Status)
	}
	if inv.Error == "" {
		t.Error("recorded invocation has no error")
	}
}

func TestQueryServesRepeatsFromCache(t *testing.T) {
	srv, api := newTestStack(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body := `{"function":"series","datasource":"prod",` + window + `,"input":{"metric":"cpu.usage"}}`
	for i := 0; i < 3; i++ {
		if resp := postQuery(t, ts, "/v1/query", "ops", body); resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, resp.StatusCode)
		}
	}

	if got := api.Requests(); got != 1 {
		t.Errorf("upstream requests = %d, want 1", got)
	}
}

func TestAsyncQuery(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body := `{"function":"entity_series","datasource":"prod",` + window + `,"input":{"metric":"cpu.usage","entity_type":"host"}}`
	resp := postQuery(t, ts, "/v1/query/async", "ops", body)

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var inv model.Invocation
	decodeBody(t, resp, &inv)

	if inv.Status != model.StatusPending {
		t.Errorf("Status = %q, want pending", inv.Status)
	}
	if loc := resp.Header.Get("Location"); loc != "/v1/invocations/"+inv.ID {
		t.Errorf("Location = %q", loc)
	}

	srv.engine.Wait()
	stored, err := srv.store.GetInvocation(context.Background(), inv.ID)
	if err != nil {
		t.Fatalf("GetInvocation: %v", err)
	}
	if stored.Status != model.StatusCompleted {
		t.Fatalf("Status = %q (error %q), want completed", stored.Status, stored.Error)
	}
	if len(stored.Outputs) != 3 {
		t.Errorf("outputs = %d, want one per host (3)", len(stored.Outputs))
	}
}

func TestAsyncQueryRejectsUnknownFunction(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postQuery(t, ts, "/v1/query/async", "", `{"function":"nope","datasource":"prod"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}

	_, total, err := srv.store.ListInvocations(context.Background(), store.ListFilter{})
	if err != nil {
		t.Fatalf("ListInvocations: %v", err)
	}
	if total != 0 {
		t.Errorf("recorded %d invocations, want 0", total)
	}
}

func TestErrorStatus(t *testing.T) {
	remote := &upstream.RemoteError{Datasource: "prod", Op: "series", Status: 503, Err: errors.New("unavailable")}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", fmt.Errorf("decompose series: %w", function.ErrInvalidInput), http.StatusBadRequest},
		{"unknown function", function.ErrUnknownFunction, http.StatusBadRequest},
		{"unknown datasource", fmt.Errorf("resolve: %w", upstream.ErrUnknownDatasource), http.StatusNotFound},
		{"not found", store.ErrNotFound, http.StatusNotFound},
		{"remote", remote, http.StatusBadGateway},
		{"composite remote", fmt.Errorf("%w: %w", dispatch.ErrCompositeFailed, remote), http.StatusBadGateway},
		{"composite", dispatch.ErrCompositeFailed, http.StatusBadGateway},
		{"timeout through upstream", fmt.Errorf("%w: %w", dispatch.ErrCompositeFailed, &upstream.RemoteError{
			Datasource: "prod",
			Op:         "series",
			Err:        &url.Error{Op: "Post", URL: "http://prod/api/v1/series", Err: context.DeadlineExceeded},
		}), http.StatusGatewayTimeout},
		{"timeout", fmt.Errorf("invocation timed out after %v: %w", time.Second, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"other", errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := errorStatus(tt.err); got != tt.want {
			t.Errorf("%s: errorStatus = %d, want %d", tt.name, got, tt.want)
		}
	}
}
