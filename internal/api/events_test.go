package api

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/seantiz/vantage/internal/engine"
	"github.com/seantiz/vantage/internal/model"
)

type sseEvent struct {
	name string
	data string
}

// readEvents reads SSE events until the stream ends.
func readEvents(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()
	var events []sseEvent
	var cur sseEvent
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			events = append(events, cur)
			cur = sseEvent{}
		}
	}
	return events
}

func TestStreamEventsNotFound(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/invocations/nonexistent/events")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestStreamEventsFinishedInvocation(t *testing.T) {
	srv := newTestServer(t)
	inv := seedInvocation(t, srv, "series", "prod", model.StatusCompleted, 7)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/invocations/" + inv.ID + "/events")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	events := readEvents(t, resp)
	if len(events) != 2 {
		t.Fatalf("got %d events, want status then done: %+v", len(events), events)
	}
	var ev engine.Event
	if err := json.Unmarshal([]byte(events[0].data), &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if events[0].name != "status" || ev.Status != model.StatusCompleted {
		t.Errorf("first event = %s/%s, want status/completed", events[0].name, ev.Status)
	}
	if events[1].name != "done" {
		t.Errorf("last event = %q, want done", events[1].name)
	}
}

func TestStreamEventsFollowsRunningInvocation(t *testing.T) {
	srv := newTestServer(t)
	inv := seedInvocation(t, srv, "series", "prod", model.StatusRunning, 0)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/invocations/" + inv.ID + "/events")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	// The handler has subscribed once headers are flushed.
	go func() {
		time.Sleep(20 * time.Millisecond)
		broker := srv.engine.Broker()
		broker.Publish(engine.Event{InvocationID: inv.ID, Status: model.StatusCompleted, Time: time.Now()})
		broker.Close(inv.ID)
	}()

	events := readEvents(t, resp)
	var statuses []string
	for _, e := range events {
		if e.name != "status" {
			statuses = append(statuses, e.name)
			continue
		}
		var ev engine.Event
		if err := json.Unmarshal([]byte(e.data), &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		statuses = append(statuses, ev.Status)
	}

	want := []string{model.StatusRunning, model.StatusCompleted, "done"}
	if strings.Join(statuses, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", statuses, want)
	}
}
