package status

import (
	"testing"
	"time"

	"github.com/matheus3301/tgvault/internal/bus"
)

func TestValidTransitionPath(t *testing.T) {
	m := NewMachine(nil)

	path := []State{Idle, Syncing, Watching, Syncing, Idle, Backfilling, Idle}
	for _, s := range path {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition(%s) error = %v", s, err)
		}
	}
	if m.Current() != Idle {
		t.Errorf("Current() = %s, want IDLE", m.Current())
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)

	// Booting cannot jump straight to Syncing.
	if err := m.Transition(Syncing); err == nil {
		t.Error("Transition(Syncing) from Booting should fail")
	}
	if m.Current() != Booting {
		t.Errorf("Current() = %s, want BOOTING after failed transition", m.Current())
	}
}

func TestTransitionPublishesEvent(t *testing.T) {
	b := bus.New()
	m := NewMachine(b)

	ch, unsub := b.Subscribe("vault.", 10)
	defer unsub()

	if err := m.Transition(Idle); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		change, ok := evt.Payload.(StatusChange)
		if !ok {
			t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
		}
		if change.From != Booting || change.To != Idle {
			t.Errorf("change = %+v, want BOOTING->IDLE", change)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for status event")
	}
}
