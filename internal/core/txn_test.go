// Licensed under the MIT License. See LICENSE file in the project root for details.

package core

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

var errAbort = errors.New("abort")

func TestUpdate(t *testing.T) {
	ctx := context.Background()

	Convey("Given a dictionary with committed data", t, func() {
		d := New[string, int](WithAutoCollect(false))
		Reset(func() { d.Close(ctx) })

		d.Set(ctx, "a", 1)
		d.Set(ctx, "b", 2)

		Convey("Writes inside the update are visible to it", func() {
			gen, err := d.Update(ctx, func(w *Writer[string, int]) error {
				So(w.Base(), ShouldEqual, Generation(2))

				v, ok := w.Get("a")
				So(ok, ShouldBeTrue)
				So(v, ShouldEqual, 1)

				w.Set("a", 10)
				w.Remove("b")
				w.Set("c", 3)

				v, _ = w.Get("a")
				So(v, ShouldEqual, 10)
				_, ok = w.Get("b")
				So(ok, ShouldBeFalse)
				So(w.Staged(), ShouldEqual, 3)

				// Nothing is visible outside until commit
				v, _ = d.Get(ctx, "a")
				So(v, ShouldEqual, 1)
				return nil
			})

			So(err, ShouldBeNil)
			So(gen, ShouldEqual, Generation(3))

			v, _ := d.Get(ctx, "a")
			So(v, ShouldEqual, 10)
			_, ok := d.Get(ctx, "b")
			So(ok, ShouldBeFalse)
			v, _ = d.Get(ctx, "c")
			So(v, ShouldEqual, 3)
		})

		Convey("An error rolls everything back", func() {
			gen, err := d.Update(ctx, func(w *Writer[string, int]) error {
				w.Set("a", 100)
				w.Clear()
				return errAbort
			})

			So(err, ShouldEqual, errAbort)
			So(gen, ShouldEqual, Generation(2))
			So(d.Generation(), ShouldEqual, Generation(2))
			v, _ := d.Get(ctx, "a")
			So(v, ShouldEqual, 1)
		})

		Convey("A panic rolls everything back and propagates", func() {
			So(func() {
				_, _ = d.Update(ctx, func(w *Writer[string, int]) error {
					w.Set("a", 100)
					panic("boom")
				})
			}, ShouldPanicWith, "boom")

			So(d.Generation(), ShouldEqual, Generation(2))
			v, _ := d.Get(ctx, "a")
			So(v, ShouldEqual, 1)

			// The writer lock was released
			So(d.Set(ctx, "a", 5), ShouldEqual, Generation(3))
		})

		Convey("An update that stages nothing does not commit", func() {
			gen, err := d.Update(ctx, func(w *Writer[string, int]) error {
				_, _ = w.Get("a")
				return nil
			})
			So(err, ShouldBeNil)
			So(gen, ShouldEqual, Generation(2))
			So(d.Generation(), ShouldEqual, Generation(2))
		})

		Convey("Clear inside an update keeps later writes", func() {
			gen, err := d.Update(ctx, func(w *Writer[string, int]) error {
				w.Set("x", 1)
				w.Clear()
				_, ok := w.Get("a")
				So(ok, ShouldBeFalse)
				_, ok = w.Get("x")
				So(ok, ShouldBeFalse)
				w.Set("y", 9)
				return nil
			})
			So(err, ShouldBeNil)
			So(gen, ShouldEqual, Generation(3))

			snap := d.CreateSnapshot(ctx)
			defer snap.Close(ctx)
			So(snap.Len(ctx), ShouldEqual, 1)
			v, _ := snap.Get(ctx, "y")
			So(v, ShouldEqual, 9)
		})

		Convey("A writer used after its update panics", func() {
			var leaked *Writer[string, int]
			_, _ = d.Update(ctx, func(w *Writer[string, int]) error {
				leaked = w
				return nil
			})
			So(func() { leaked.Set("a", 1) }, ShouldPanicWith, ErrWriterDone)
			So(func() { leaked.Get("a") }, ShouldPanicWith, ErrWriterDone)
		})

		Convey("A cancelled context prevents the update", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			called := false
			_, err := d.Update(cctx, func(w *Writer[string, int]) error {
				called = true
				return nil
			})
			So(err, ShouldEqual, context.Canceled)
			So(called, ShouldBeFalse)
		})

		Convey("A closed dictionary refuses updates", func() {
			d.Close(ctx)
			_, err := d.Update(ctx, func(w *Writer[string, int]) error { return nil })
			So(err, ShouldEqual, ErrClosed)
		})
	})
}
