package engine_test

import (
	"testing"

	"github.com/seantiz/vantage/internal/engine"
	"github.com/seantiz/vantage/internal/model"
)

func event(id, status string) engine.Event {
	return engine.Event{InvocationID: id, Status: status}
}

func TestEventBrokerSingleSubscriber(t *testing.T) {
	b := engine.NewEventBroker()
	ch, unsub := b.Subscribe("i1")
	defer unsub()

	statuses := []string{model.StatusRunning, model.StatusCompleted}
	for _, s := range statuses {
		b.Publish(event("i1", s))
	}
	b.Close("i1")

	var got []string
	for ev := range ch {
		got = append(got, ev.Status)
	}

	if len(got) != len(statuses) {
		t.Fatalf("got %d events, want %d", len(got), len(statuses))
	}
	for i, s := range got {
		if s != statuses[i] {
			t.Errorf("event[%d] = %q, want %q", i, s, statuses[i])
		}
	}
}

func TestEventBrokerMultipleSubscribers(t *testing.T) {
	b := engine.NewEventBroker()
	ch1, unsub1 := b.Subscribe("i1")
	defer unsub1()
	ch2, unsub2 := b.Subscribe("i1")
	defer unsub2()

	b.Publish(event("i1", model.StatusRunning))
	b.Close("i1")

	for i, ch := range []<-chan engine.Event{ch1, ch2} {
		var got []string
		for ev := range ch {
			got = append(got, ev.Status)
		}
		if len(got) != 1 || got[0] != model.StatusRunning {
			t.Errorf("subscriber %d got %v, want [running]", i+1, got)
		}
	}
}

func TestEventBrokerLateSubscriberGetsClosed(t *testing.T) {
	b := engine.NewEventBroker()
	b.Close("i1")

	ch, unsub := b.Subscribe("i1")
	defer unsub()

	if _, ok := <-ch; ok {
		t.Error("expected closed channel for finished invocation")
	}
}

func TestEventBrokerUnsubscribeStopsDelivery(t *testing.T) {
	b := engine.NewEventBroker()
	ch, unsub := b.Subscribe("i1")

	unsub()
	b.Publish(event("i1", model.StatusRunning))

	select {
	case ev := <-ch:
		t.Errorf("received %+v after unsubscribe", ev)
	default:
	}
}

func TestEventBrokerPublishToUnknownInvocationIsNoop(t *testing.T) {
	b := engine.NewEventBroker()
	b.Publish(event("nobody", model.StatusRunning))
}

func TestEventBrokerDropsForSlowSubscriber(t *testing.T) {
	b := engine.NewEventBroker()
	ch, unsub := b.Subscribe("i1")
	defer unsub()

	for i := 0; i < 100; i++ {
		b.Publish(event("i1", model.StatusRunning))
	}
	b.Close("i1")

	n := 0
	for range ch {
		n++
	}
	if n == 0 || n >= 100 {
		t.Errorf("slow subscriber received %d events, want some but not all", n)
	}
}
