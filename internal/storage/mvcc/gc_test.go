// Licensed under the MIT License. See LICENSE file in the project root for details.

package mvcc

import (
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestTrimEntryKeepsBaseVersion(t *testing.T) {
	entry := NewEntry[string, string]("k")
	entry.Push(1, "a", false)
	entry.Push(3, "b", false)
	entry.Push(5, "c", false)

	// Floor 4: generation 3 is the base, generation 1 is unreachable
	res := TrimEntry(entry, 4)
	if res.Dropped != 1 || res.Kept != 2 || res.Empty {
		t.Errorf("Unexpected trim result %+v", res)
	}
	if v, ok := entry.Get(4); !ok || v != "b" {
		t.Errorf("Expected 'b' at generation 4, got %v (exists=%v)", v, ok)
	}
	if entry.Len() != 2 {
		t.Errorf("Expected 2 versions left, got %d", entry.Len())
	}
}

func TestTrimEntryNothingBelowFloor(t *testing.T) {
	entry := NewEntry[string, string]("k")
	entry.Push(5, "a", false)
	entry.Push(6, "b", false)

	res := TrimEntry(entry, 2)
	if res.Dropped != 0 || res.Empty {
		t.Errorf("Expected no trimming, got %+v", res)
	}
	if entry.Len() != 2 {
		t.Errorf("Expected 2 versions, got %d", entry.Len())
	}
}

func TestTrimEntryDeadTombstone(t *testing.T) {
	entry := NewEntry[string, string]("k")
	entry.Push(1, "a", false)
	entry.Push(2, "", true)

	res := TrimEntry(entry, 2)
	if !res.Empty {
		t.Errorf("Expected entry to be reported empty, got %+v", res)
	}
	if res.Dropped != 1 {
		t.Errorf("Expected one dropped version, got %d", res.Dropped)
	}

	// A tombstone still needed by an older floor is kept
	entry = NewEntry[string, string]("k")
	entry.Push(1, "a", false)
	entry.Push(2, "", true)
	if res := TrimEntry(entry, 1); res.Empty || res.Dropped != 0 {
		t.Errorf("Expected tombstone to survive floor 1, got %+v", res)
	}
}

func TestTrimEntryTombstoneBelowNewerValue(t *testing.T) {
	entry := NewEntry[string, string]("k")
	entry.Push(1, "a", false)
	entry.Push(2, "", true)
	entry.Push(4, "b", false)

	res := TrimEntry(entry, 3)
	if res.Empty {
		t.Error("Expected entry with a newer value not to be empty")
	}
	if _, ok := entry.Get(3); ok {
		t.Error("Expected key absent at generation 3")
	}
	if entry.Len() != 2 {
		t.Errorf("Expected 2 versions left, got %d", entry.Len())
	}
}

func TestTrimEntryNil(t *testing.T) {
	res := TrimEntry[string, string](nil, 10)
	if res != (TrimResult{}) {
		t.Errorf("Expected zero result for nil entry, got %+v", res)
	}
}

func TestNewGC(t *testing.T) {
	gc := NewGC(func() {}, 0)

	if gc == nil {
		t.Fatal("NewGC() returned nil")
	}
	if gc.stop.Load() {
		t.Error("Expected gc.stop to be false initially")
	}
	if gc.started.Load() {
		t.Error("Expected gc not to be started before Start")
	}
}

func TestGCStartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	gc := NewGC(func() {}, 0)
	gc.Start()
	if !gc.started.Load() {
		t.Error("Expected gc to be started after Start")
	}

	gc.Stop()
	if !gc.stop.Load() {
		t.Error("Expected gc.stop to be true after Stop()")
	}

	// Stop is idempotent
	gc.Stop()
}

func TestGCStartWhenAlreadyStopped(t *testing.T) {
	defer goleak.VerifyNone(t)

	gc := NewGC(func() {}, 0)
	gc.Stop()
	gc.Start()

	if gc.started.Load() {
		t.Error("Expected Start() after Stop() not to start the loop")
	}
}

func TestGCTrigger(t *testing.T) {
	defer goleak.VerifyNone(t)

	var runs atomic.Int32
	gc := NewGC(func() { runs.Add(1) }, 0)
	gc.Start()
	defer gc.Stop()

	gc.Trigger()

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if runs.Load() == 0 {
		t.Error("Expected a triggered collection to run")
	}
}

func TestGCTriggerCoalesces(t *testing.T) {
	defer goleak.VerifyNone(t)

	// Not started: triggers pile into a single pending slot
	gc := NewGC(func() {}, 0)
	for i := 0; i < 10; i++ {
		gc.Trigger()
	}
	if len(gc.wake) != 1 {
		t.Errorf("Expected one pending trigger, got %d", len(gc.wake))
	}
	gc.Stop()
}

func TestGCInterval(t *testing.T) {
	defer goleak.VerifyNone(t)

	var runs atomic.Int32
	gc := NewGC(func() { runs.Add(1) }, 5*time.Millisecond)
	gc.Start()

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	gc.Stop()

	if runs.Load() < 2 {
		t.Errorf("Expected periodic collections, got %d", runs.Load())
	}
}
