// Licensed under the MIT License. See LICENSE file in the project root for details.

package genref

import (
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

// current stands in for a dictionary's committed generation.
func current() Generation { return 100 }

func TestRegistryBasicOperations(t *testing.T) {
	Convey("Given a new registry", t, func() {
		r := NewRegistry()

		Convey("Initially", func() {
			So(r.FloorWith(current), ShouldEqual, current())
			So(r.GenCount(), ShouldEqual, 0)
			So(r.RefCount(), ShouldEqual, 0)
		})

		Convey("When acquiring generation 10", func() {
			ref10 := r.Acquire(10)

			Convey("Then the floor should be 10", func() {
				So(r.FloorWith(current), ShouldEqual, Generation(10))
				So(ref10.Gen(), ShouldEqual, Generation(10))
			})

			Convey("When acquiring generation 5", func() {
				ref5 := r.Acquire(5)

				Convey("Then the floor should be 5", func() {
					So(r.FloorWith(current), ShouldEqual, Generation(5))
					So(r.GenCount(), ShouldEqual, 2)
				})

				Convey("When releasing generation 10", func() {
					freed := r.Release(ref10)

					Convey("Then the floor did not move", func() {
						So(freed, ShouldBeFalse)
						So(r.FloorWith(current), ShouldEqual, Generation(5))
					})

					Convey("When releasing generation 5", func() {
						freed := r.Release(ref5)

						Convey("Then the floor was freed and the registry is empty", func() {
							So(freed, ShouldBeTrue)
							So(r.FloorWith(current), ShouldEqual, current())
							So(r.GenCount(), ShouldEqual, 0)
						})
					})
				})
			})
		})
	})
}

func TestRegistrySharedGenObj(t *testing.T) {
	Convey("Given three references to the same generation", t, func() {
		r := NewRegistry()
		a := r.Acquire(3)
		b := r.Acquire(3)
		c := r.Acquire(3)

		Convey("They share one GenObj", func() {
			So(a.obj, ShouldPointTo, b.obj)
			So(b.obj, ShouldPointTo, c.obj)
			So(a.obj.Count(), ShouldEqual, 3)
			So(r.GenCount(), ShouldEqual, 1)
			So(r.RefCount(), ShouldEqual, 3)
		})

		Convey("Releasing all but one keeps the generation live", func() {
			So(r.Release(a), ShouldBeFalse)
			So(r.Release(b), ShouldBeFalse)
			So(r.GenCount(), ShouldEqual, 1)
			So(c.obj.Count(), ShouldEqual, 1)

			Convey("And the last release frees it", func() {
				So(r.Release(c), ShouldBeTrue)
				So(r.GenCount(), ShouldEqual, 0)
			})
		})
	})
}

func TestRegistryDoubleRelease(t *testing.T) {
	Convey("Given a released reference", t, func() {
		r := NewRegistry()
		ref := r.Acquire(1)
		r.Release(ref)

		Convey("Releasing it again panics", func() {
			So(ref.Released(), ShouldBeTrue)
			So(func() { r.Release(ref) }, ShouldPanicWith, ErrReleased)
		})
	})
}

func TestRegistryFloorWith(t *testing.T) {
	Convey("Given live generations 4 and 9", t, func() {
		r := NewRegistry()
		r.Acquire(4)
		r.Acquire(9)

		Convey("The current generation caps nothing when it is newer", func() {
			So(r.FloorWith(func() Generation { return 12 }), ShouldEqual, Generation(4))
		})

		Convey("An empty registry falls back to the current generation", func() {
			empty := NewRegistry()
			So(empty.FloorWith(func() Generation { return 12 }), ShouldEqual, Generation(12))
		})
	})
}

func TestRegistryConcurrentAccess(t *testing.T) {
	Convey("Given a registry under concurrent acquire and release", t, func() {
		r := NewRegistry()
		var wg sync.WaitGroup
		const numGoroutines = 10
		const numOps = 1000

		for i := 0; i < numGoroutines; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				for j := 0; j < numOps; j++ {
					ref := r.AcquireFunc(func() Generation { return Generation(j % 7) })
					r.Release(ref)
				}
			}(i)
		}
		wg.Wait()

		Convey("Then every generation is released", func() {
			So(r.GenCount(), ShouldEqual, 0)
			So(r.RefCount(), ShouldEqual, 0)
		})
	})
}
