package proactor

import (
	"testing"
	"time"
)

func TestWatchdogHealthySweep(t *testing.T) {
	pats := 0
	w := NewWatchdogManager(time.Minute, func() { pats++ })
	w.Register("mqtt-parent", 0)
	w.Register("persister", 30*time.Second)

	if expired := w.Check(time.Now()); expired != nil {
		t.Errorf("fresh registration expired: %v", expired)
	}
	if pats != 1 {
		t.Errorf("external pats = %d after healthy sweep, want 1", pats)
	}
}

func TestWatchdogExpiry(t *testing.T) {
	pats := 0
	w := NewWatchdogManager(time.Minute, func() { pats++ })
	w.Register("mqtt-parent", 10*time.Second)
	w.Register("persister", 30*time.Second)

	// 15s of silence: only the 10s actor has expired.
	later := time.Now().Add(15 * time.Second)
	expired := w.Check(later)
	if len(expired) != 1 || expired[0] != "mqtt-parent" {
		t.Fatalf("expired = %v, want [mqtt-parent]", expired)
	}
	// An unhealthy sweep withholds the external pat.
	if pats != 0 {
		t.Errorf("external pats = %d on unhealthy sweep, want 0", pats)
	}
}

func TestWatchdogPatDefersExpiry(t *testing.T) {
	w := NewWatchdogManager(time.Minute, nil)
	w.Register("mqtt-parent", 10*time.Second)

	time.Sleep(time.Millisecond)
	w.Pat("mqtt-parent")

	later := time.Now().Add(9 * time.Second)
	if expired := w.Check(later); expired != nil {
		t.Errorf("patted actor expired: %v", expired)
	}
}

func TestWatchdogDefaultTimeout(t *testing.T) {
	w := NewWatchdogManager(20*time.Second, nil)
	w.Register("actor", 0)

	if expired := w.Check(time.Now().Add(15 * time.Second)); expired != nil {
		t.Errorf("expired before default timeout: %v", expired)
	}
	if expired := w.Check(time.Now().Add(25 * time.Second)); len(expired) != 1 {
		t.Errorf("not expired after default timeout: %v", expired)
	}
}

func TestWatchdogUnregister(t *testing.T) {
	w := NewWatchdogManager(time.Second, nil)
	w.Register("doomed", time.Second)
	w.Unregister("doomed")

	if expired := w.Check(time.Now().Add(time.Hour)); expired != nil {
		t.Errorf("unregistered actor expired: %v", expired)
	}
	if actors := w.Actors(); len(actors) != 0 {
		t.Errorf("Actors() = %v after unregister, want none", actors)
	}

	// Unknown names are tolerated everywhere.
	w.Unregister("never-registered")
	w.Pat("never-registered")
}

func TestWatchdogActorsSorted(t *testing.T) {
	w := NewWatchdogManager(time.Minute, nil)
	w.Register("zeta", 0)
	w.Register("alpha", 0)

	actors := w.Actors()
	if len(actors) != 2 {
		t.Fatalf("Actors() returned %d entries, want 2", len(actors))
	}
	if actors[0].Name != "alpha" || actors[1].Name != "zeta" {
		t.Errorf("Actors() order = [%s %s], want sorted", actors[0].Name, actors[1].Name)
	}
	if actors[0].Timeout != time.Minute {
		t.Errorf("default timeout not applied: %v", actors[0].Timeout)
	}
}
