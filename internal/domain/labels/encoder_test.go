package labels_test

import (
	"errors"
	"testing"

	"github.com/okian/triage/internal/domain/labels"
	"github.com/smartystreets/goconvey/convey"
)

func TestEncoder(t *testing.T) {
	convey.Convey("Given observed priority labels", t, func() {
		enc, err := labels.Fit([]string{"P2", "P0", "P3", "P2", "P1", "P0"})
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Then classes are sorted and distinct", func() {
			convey.So(enc.Classes(), convey.ShouldResemble, []string{"P0", "P1", "P2", "P3"})
			convey.So(enc.Len(), convey.ShouldEqual, 4)
		})

		convey.Convey("Then encode and decode are inverse", func() {
			for i, c := range enc.Classes() {
				idx, err := enc.Encode(c)
				convey.So(err, convey.ShouldBeNil)
				convey.So(idx, convey.ShouldEqual, i)
				back, err := enc.Decode(idx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(back, convey.ShouldEqual, c)
			}
		})

		convey.Convey("Then unknown labels and indices are errors", func() {
			_, err := enc.Encode("P9")
			convey.So(errors.Is(err, labels.ErrUnknownLabel), convey.ShouldBeTrue)
			_, err = enc.Decode(4)
			convey.So(errors.Is(err, labels.ErrUnknownIndex), convey.ShouldBeTrue)
			_, err = enc.Decode(-1)
			convey.So(errors.Is(err, labels.ErrUnknownIndex), convey.ShouldBeTrue)
			_, err = enc.EncodeAll([]string{"P0", "urgent"})
			convey.So(errors.Is(err, labels.ErrUnknownLabel), convey.ShouldBeTrue)
		})

		convey.Convey("Then Classes returns a copy", func() {
			c := enc.Classes()
			c[0] = "changed"
			convey.So(enc.Classes()[0], convey.ShouldEqual, "P0")
		})
	})

	convey.Convey("Given explicit class lists", t, func() {
		_, err := labels.FromClasses([]string{"b", "a"})
		convey.So(errors.Is(err, labels.ErrInvalidLabels), convey.ShouldBeTrue)
		_, err = labels.FromClasses([]string{"a", "a"})
		convey.So(errors.Is(err, labels.ErrInvalidLabels), convey.ShouldBeTrue)
		_, err = labels.FromClasses(nil)
		convey.So(errors.Is(err, labels.ErrEmptyLabels), convey.ShouldBeTrue)
		_, err = labels.Fit(nil)
		convey.So(errors.Is(err, labels.ErrEmptyLabels), convey.ShouldBeTrue)

		enc, err := labels.FromClasses([]string{"account", "billing"})
		convey.So(err, convey.ShouldBeNil)
		idx, err := enc.EncodeAll([]string{"billing", "account"})
		convey.So(err, convey.ShouldBeNil)
		convey.So(idx, convey.ShouldResemble, []int{1, 0})
	})
}
