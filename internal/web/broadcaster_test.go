package web

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func receive(t *testing.T, ch <-chan string) StatusEvent {
	t.Helper()
	select {
	case msg := <-ch:
		var evt StatusEvent
		if err := json.Unmarshal([]byte(msg), &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return evt
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast")
	}
	return StatusEvent{}
}

func TestBroadcaster_SubscribeAndReceive(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Log("info", "hello")

	evt := receive(t, ch)
	if evt.Msg != "hello" || evt.Level != "info" || evt.Kind != KindLog {
		t.Errorf("event = %+v", evt)
	}
	if evt.Time == "" {
		t.Error("event should have a timestamp")
	}
}

func TestBroadcaster_MultipleSubscribers(t *testing.T) {
	b := NewStatusBroadcaster()
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	if b.Subscribers() != 2 {
		t.Errorf("subscribers = %d, want 2", b.Subscribers())
	}
	b.Log("info", "multi")

	for i, ch := range []<-chan string{ch1, ch2} {
		if evt := receive(t, ch); evt.Msg != "multi" {
			t.Errorf("subscriber %d: msg = %q", i, evt.Msg)
		}
	}
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	unsub()
	unsub() // idempotent

	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
	if b.Subscribers() != 0 {
		t.Errorf("subscribers = %d after unsubscribe", b.Subscribers())
	}
	// Publishing with no clients must not panic.
	b.Log("info", "after unsub")
}

func TestBroadcaster_FullChannelDropsMessage(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	for i := 0; i < 64; i++ {
		b.Log("info", "fill")
	}
	b.Log("info", "overflow") // dropped, must not block

	count := 0
	for len(ch) > 0 {
		<-ch
		count++
	}
	if count != 64 {
		t.Errorf("expected 64 buffered messages, got %d", count)
	}
}

func TestBroadcaster_FaultAndHoming(t *testing.T) {
	b := NewStatusBroadcaster()
	b.now = func() time.Time { return time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC) }
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Fault(nil) // ignored
	b.Fault(errors.New("elevation track: stalled after 100 ticks"))
	b.Homing("seek_switch", "slow_approach")

	fault := receive(t, ch)
	if fault.Kind != KindFault || fault.Level != "error" || fault.Msg != "elevation track: stalled after 100 ticks" {
		t.Errorf("fault event = %+v", fault)
	}
	if fault.Time != "2026-06-21T12:00:00Z" {
		t.Errorf("time = %q", fault.Time)
	}
	hom := receive(t, ch)
	if hom.Kind != KindHoming || hom.Msg != "seek_switch -> slow_approach" {
		t.Errorf("homing event = %+v", hom)
	}
}

func TestBroadcastWriter_Write(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	w := BroadcastWriter(b)
	in := "  trimmed message  \n"
	n, err := w.Write([]byte(in))
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if n != len(in) {
		t.Errorf("n = %d, want %d", n, len(in))
	}
	if evt := receive(t, ch); evt.Msg != "trimmed message" {
		t.Errorf("msg = %q, want \"trimmed message\"", evt.Msg)
	}
}

func TestBroadcastWriter_EmptyWriteIgnored(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	BroadcastWriter(b).Write([]byte("   \n"))

	select {
	case <-ch:
		t.Error("expected no message for whitespace-only write")
	case <-time.After(50 * time.Millisecond):
	}
}
