// Licensed under the MIT License. See LICENSE file in the project root for details.

package core

import (
	"context"
	"runtime"
	"slices"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSnapshotLifecycle(t *testing.T) {
	ctx := context.Background()

	Convey("Given a dictionary with some keys", t, func() {
		d := New[string, int](WithAutoCollect(false))
		Reset(func() { d.Close(ctx) })

		d.Set(ctx, "a", 1)
		d.Set(ctx, "b", 2)
		d.Set(ctx, "c", 3)

		Convey("A snapshot pins the committed generation", func() {
			snap := d.CreateSnapshot(ctx)
			So(snap.Gen(), ShouldEqual, Generation(3))
			So(d.SnapCount(), ShouldEqual, 1)
			So(d.GenCount(), ShouldEqual, 1)

			d.Set(ctx, "a", 10)
			d.Remove(ctx, "b")

			v, ok := snap.Get(ctx, "a")
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 1)
			_, ok = snap.Get(ctx, "b")
			So(ok, ShouldBeTrue)

			snap.Close(ctx)
			So(d.SnapCount(), ShouldEqual, 0)
			So(d.GenCount(), ShouldEqual, 0)
		})

		Convey("Snapshots of the same generation share it", func() {
			s1 := d.CreateSnapshot(ctx)
			s2 := d.CreateSnapshot(ctx)
			So(d.SnapCount(), ShouldEqual, 2)
			So(d.GenCount(), ShouldEqual, 1)

			d.Set(ctx, "d", 4)
			s3 := d.CreateSnapshot(ctx)
			So(d.GenCount(), ShouldEqual, 2)

			s1.Close(ctx)
			So(d.GenCount(), ShouldEqual, 2)
			s2.Close(ctx)
			So(d.GenCount(), ShouldEqual, 1)
			s3.Close(ctx)
			So(d.GenCount(), ShouldEqual, 0)
		})

		Convey("Keys, All and Len reflect the pinned generation", func() {
			snap := d.CreateSnapshot(ctx)
			defer snap.Close(ctx)
			d.Remove(ctx, "a")
			d.Set(ctx, "z", 26)

			keys := slices.Sorted(snap.Keys(ctx))
			So(keys, ShouldResemble, []string{"a", "b", "c"})
			So(snap.Len(ctx), ShouldEqual, 3)

			sum := 0
			for _, v := range snap.All(ctx) {
				sum += v
			}
			So(sum, ShouldEqual, 6)

			// Sequences can be consumed twice and stopped early
			So(slices.Sorted(snap.Keys(ctx)), ShouldResemble, keys)
			n := 0
			for range snap.Keys(ctx) {
				n++
				break
			}
			So(n, ShouldEqual, 1)
		})

		Convey("Closing twice panics", func() {
			snap := d.CreateSnapshot(ctx)
			snap.Close(ctx)
			So(func() { snap.Close(ctx) }, ShouldPanicWith, ErrSnapshotClosed)
			So(d.SnapCount(), ShouldEqual, 0)
		})

		Convey("Reading a closed snapshot panics", func() {
			snap := d.CreateSnapshot(ctx)
			keys := snap.Keys(ctx)
			snap.Close(ctx)

			So(func() { snap.Get(ctx, "a") }, ShouldPanicWith, ErrSnapshotClosed)
			So(func() { snap.Gen() }, ShouldPanicWith, ErrSnapshotClosed)
			So(func() { snap.Len(ctx) }, ShouldPanicWith, ErrSnapshotClosed)
			So(func() {
				for range keys {
				}
			}, ShouldPanicWith, ErrSnapshotClosed)
		})
	})
}

func TestSnapshotDuringUpdate(t *testing.T) {
	ctx := context.Background()

	Convey("Given an update that is still running", t, func() {
		d := New[string, int]()
		defer d.Close(ctx)
		d.Set(ctx, "a", 1)

		type seen struct {
			gen Generation
			val int
		}
		results := make(chan seen, 1)

		gen, err := d.Update(ctx, func(w *Writer[string, int]) error {
			w.Set("a", 2)

			// Readers must not wait for the writer
			go func() {
				snap := d.CreateSnapshot(ctx)
				defer snap.Close(ctx)
				v, _ := snap.Get(ctx, "a")
				results <- seen{gen: snap.Gen(), val: v}
			}()

			select {
			case r := <-results:
				results <- r
				return nil
			case <-time.After(5 * time.Second):
				return context.DeadlineExceeded
			}
		})

		So(err, ShouldBeNil)
		So(gen, ShouldEqual, Generation(2))

		r := <-results
		So(r.gen, ShouldEqual, Generation(1))
		So(r.val, ShouldEqual, 1)

		v, _ := d.Get(ctx, "a")
		So(v, ShouldEqual, 2)
	})
}

func leakSnapshot(ctx context.Context, d *Dictionary[string, int]) {
	snap := d.CreateSnapshot(ctx)
	_, _ = snap.Get(ctx, "a")
}

func TestLeakedSnapshotIsReleased(t *testing.T) {
	ctx := context.Background()
	d := New[string, int]()
	defer d.Close(ctx)

	d.Set(ctx, "a", 1)
	leakSnapshot(ctx, d)

	if d.SnapCount() != 1 {
		t.Fatalf("Expected 1 live snapshot, got %d", d.SnapCount())
	}

	deadline := time.Now().Add(5 * time.Second)
	for d.SnapCount() != 0 && time.Now().Before(deadline) {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	if d.SnapCount() != 0 {
		t.Fatalf("Expected leaked snapshot to be released, %d still live", d.SnapCount())
	}

	var leaked uint64
	for time.Now().Before(deadline) {
		if leaked = d.GetMetrics(ctx).Collector.LeakedSnapshots; leaked == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if leaked != 1 {
		t.Errorf("Expected 1 leaked snapshot recorded, got %d", leaked)
	}
}

func TestSnapshotKeepsValuesUnderCollection(t *testing.T) {
	ctx := context.Background()
	d := New[int, int](WithCollectEvery(1))
	defer d.Close(ctx)

	for i := 0; i < 100; i++ {
		d.Set(ctx, i, i)
	}
	snap := d.CreateSnapshot(ctx)
	defer snap.Close(ctx)

	for round := 1; round <= 10; round++ {
		for i := 0; i < 100; i++ {
			if i%2 == 0 {
				d.Remove(ctx, i)
			} else {
				d.Set(ctx, i, i*round)
			}
		}
		d.Collect(ctx)
	}

	for i := 0; i < 100; i++ {
		v, ok := snap.Get(ctx, i)
		if !ok || v != i {
			t.Fatalf("Snapshot lost key %d: got %d, %v", i, v, ok)
		}
	}
	if snap.Len(ctx) != 100 {
		t.Errorf("Expected 100 keys in snapshot, got %d", snap.Len(ctx))
	}
}
