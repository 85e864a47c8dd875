// Licensed under the MIT License. See LICENSE file in the project root for details.

package core

import (
	"context"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestDictionaryBasicOperations(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new dictionary", t, func() {
		d := New[string, int](WithAutoCollect(false))
		Reset(func() { d.Close(ctx) })

		Convey("It starts empty at generation 0", func() {
			So(d.Generation(), ShouldEqual, Generation(0))
			So(d.Count(), ShouldEqual, 0)
			_, ok := d.Get(ctx, "a")
			So(ok, ShouldBeFalse)
		})

		Convey("Each write commits exactly one generation", func() {
			So(d.Set(ctx, "a", 1), ShouldEqual, Generation(1))
			So(d.Set(ctx, "b", 2), ShouldEqual, Generation(2))
			So(d.Remove(ctx, "a"), ShouldEqual, Generation(3))
			So(d.Generation(), ShouldEqual, Generation(3))

			_, ok := d.Get(ctx, "a")
			So(ok, ShouldBeFalse)
			v, ok := d.Get(ctx, "b")
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 2)
		})

		Convey("Removing an absent key still commits a generation", func() {
			So(d.Remove(ctx, "missing"), ShouldEqual, Generation(1))
			So(d.Count(), ShouldEqual, 0)
		})

		Convey("Overwriting a key keeps one index entry", func() {
			d.Set(ctx, "a", 1)
			d.Set(ctx, "a", 2)
			d.Set(ctx, "a", 3)
			So(d.Count(), ShouldEqual, 1)
			v, _ := d.Get(ctx, "a")
			So(v, ShouldEqual, 3)
		})

		Convey("Clear removes every key in one generation", func() {
			d.Set(ctx, "a", 1)
			d.Set(ctx, "b", 2)
			d.Remove(ctx, "b")
			snap := d.CreateSnapshot(ctx)
			defer snap.Close(ctx)

			gen := d.Clear(ctx)
			So(gen, ShouldEqual, Generation(4))

			fresh := d.CreateSnapshot(ctx)
			defer fresh.Close(ctx)
			So(fresh.Len(ctx), ShouldEqual, 0)

			// The snapshot taken before Clear is unaffected
			v, ok := snap.Get(ctx, "a")
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 1)
		})

		Convey("Clear on an empty dictionary still commits", func() {
			So(d.Clear(ctx), ShouldEqual, Generation(1))
		})
	})
}

func TestDictionaryExampleScenario(t *testing.T) {
	ctx := context.Background()

	Convey("Given snapshots taken between writes to the same key", t, func() {
		d := New[string, int]()
		Reset(func() { d.Close(ctx) })

		So(d.Set(ctx, "a", 1), ShouldEqual, Generation(1))
		s1 := d.CreateSnapshot(ctx)
		So(d.Set(ctx, "a", 2), ShouldEqual, Generation(2))
		s2 := d.CreateSnapshot(ctx)
		So(d.Remove(ctx, "a"), ShouldEqual, Generation(3))

		Convey("Each snapshot sees its own generation", func() {
			v, ok := s1.Get(ctx, "a")
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 1)

			v, ok = s2.Get(ctx, "a")
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 2)

			s3 := d.CreateSnapshot(ctx)
			_, ok = s3.Get(ctx, "a")
			So(ok, ShouldBeFalse)
			So(s3.Gen(), ShouldEqual, Generation(3))
			s3.Close(ctx)
		})

		Convey("Collection keeps them intact", func() {
			d.Collect(ctx)

			v, _ := s1.Get(ctx, "a")
			So(v, ShouldEqual, 1)
			v, _ = s2.Get(ctx, "a")
			So(v, ShouldEqual, 2)
		})

		Reset(func() {
			s1.Close(ctx)
			s2.Close(ctx)
		})
	})
}

func TestDictionaryConcurrentWriters(t *testing.T) {
	ctx := context.Background()

	Convey("Given a snapshot taken before 100 concurrent writers", t, func() {
		d := New[string, int](WithCollectEvery(2))
		defer d.Close(ctx)

		d.Set(ctx, "k", -1)
		snap := d.CreateSnapshot(ctx)
		defer snap.Close(ctx)

		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				d.Set(ctx, "k", i)
			}(i)
		}

		readerDone := make(chan bool)
		go func() {
			stable := true
			<-start
			for j := 0; j < 1000; j++ {
				if v, ok := snap.Get(ctx, "k"); !ok || v != -1 {
					stable = false
				}
			}
			readerDone <- stable
		}()

		close(start)
		wg.Wait()

		So(<-readerDone, ShouldBeTrue)
		So(d.Generation(), ShouldEqual, Generation(101))

		v, ok := snap.Get(ctx, "k")
		So(ok, ShouldBeTrue)
		So(v, ShouldEqual, -1)
	})
}

func TestDictionaryGetDuringWrites(t *testing.T) {
	ctx := context.Background()
	d := New[int, int](WithCollectEvery(1))
	defer d.Close(ctx)

	for i := 0; i < 16; i++ {
		d.Set(ctx, i, 0)
	}

	var wg sync.WaitGroup
	done := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				for k := 0; k < 16; k++ {
					// Keys are only ever overwritten, never removed
					if _, ok := d.Get(ctx, k); !ok {
						t.Errorf("key %d disappeared", k)
						return
					}
				}
			}
		}()
	}

	for i := 1; i <= 2000; i++ {
		d.Set(ctx, i%16, i)
	}
	close(done)
	wg.Wait()
}

func TestDictionaryOptions(t *testing.T) {
	ctx := context.Background()

	d := New[string, string](
		WithName("routes"),
		WithBuckets(100),
		WithCollectEvery(0),
		WithMetrics(nil),
		WithLogger(nil),
	)
	defer d.Close(ctx)

	if d.Name() != "routes" {
		t.Errorf("Expected name routes, got %s", d.Name())
	}
	if d.index.Size() != 128 {
		t.Errorf("Expected 128 buckets, got %d", d.index.Size())
	}
	if d.cfg.collectEvery != DefaultCollectEvery {
		t.Errorf("Expected default collect cadence, got %d", d.cfg.collectEvery)
	}
	if d.Metrics() != nil {
		t.Error("Expected metrics to be disabled")
	}

	// Everything still works without metrics
	d.Set(ctx, "a", "b")
	if got := d.GetMetrics(ctx); got.Operations.Set != 0 {
		t.Errorf("Expected empty metrics, got %+v", got.Operations)
	}

	// Close is idempotent
	d.Close(ctx)
}

func TestDictionaryLoadFactor(t *testing.T) {
	ctx := context.Background()

	d := New[int, int](WithBuckets(16), WithLoadFactor(4), WithAutoCollect(false), WithMetrics(nil))
	defer d.Close(ctx)

	for i := 0; i < 64; i++ {
		d.Set(ctx, i, i)
	}
	stats := d.Collect(ctx)
	if stats.Buckets != 16 || stats.Resizes != 0 {
		t.Errorf("Expected 16 buckets and no resize at load 4, got %d buckets, %d resizes", stats.Buckets, stats.Resizes)
	}

	d.Set(ctx, 64, 64)
	stats = d.Collect(ctx)
	if stats.Buckets <= 16 || stats.Resizes != 1 {
		t.Errorf("Expected one resize past load 4, got %d buckets, %d resizes", stats.Buckets, stats.Resizes)
	}
	if stats.Keys != 65 {
		t.Errorf("Expected 65 keys, got %d", stats.Keys)
	}

	// The default load factor grows a 16 bucket index by the 13th key
	def := New[int, int](WithBuckets(16), WithLoadFactor(0), WithAutoCollect(false), WithMetrics(nil))
	defer def.Close(ctx)
	for i := 0; i < 13; i++ {
		def.Set(ctx, i, i)
	}
	if stats := def.Collect(ctx); stats.Resizes != 1 {
		t.Errorf("Expected the default load factor to grow the index, got %d resizes", stats.Resizes)
	}
}

func TestDictionaryMetrics(t *testing.T) {
	ctx := context.Background()
	d := New[string, int](WithAutoCollect(false))
	defer d.Close(ctx)

	d.Set(ctx, "a", 1)
	d.Remove(ctx, "a")
	snap := d.CreateSnapshot(ctx)
	defer snap.Close(ctx)
	d.Collect(ctx)

	var stats = d.GetMetrics(ctx)
	for i := 0; i < 100 && stats.Operations.Collect == 0; i++ {
		stats = d.GetMetrics(ctx)
	}

	if stats.Gauges.Generation != 2 {
		t.Errorf("Expected generation gauge 2, got %d", stats.Gauges.Generation)
	}
	if stats.Gauges.LiveSnapshots != 1 {
		t.Errorf("Expected 1 live snapshot, got %d", stats.Gauges.LiveSnapshots)
	}
}
