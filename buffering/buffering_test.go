package buffering

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMarks(t *testing.T) {
	Convey("Marks", t, func() {
		Convey("Should fill missing values with defaults", func() {
			c := New(Marks{})
			So(c.Marks(), ShouldResemble, DefaultMarks())
			So(c.MarkMs(), ShouldEqual, DefaultFirstMarkMs)
		})
		Convey("Should keep the ladder ordered", func() {
			c := New(Marks{FirstMs: 2000, NextMs: 500, LastMs: 1000, Bytes: 10})
			So(c.Marks(), ShouldResemble, Marks{FirstMs: 2000, NextMs: 2000, LastMs: 2000, Bytes: 10})
		})
	})
}

func TestCheck(t *testing.T) {
	Convey("Check", t, func() {
		c := New(DefaultMarks())

		Convey("Should prefer the time metric", func() {
			s := c.Check(Level{AudioCachedMs: 50, VideoCachedMs: 80, Bytes: 1024, PositionMs: 1000})
			So(s.TimePercent, ShouldEqual, 50)
			So(s.SizePercent, ShouldEqual, 0)
			So(s.Percent, ShouldEqual, 0)
			So(s.Enough, ShouldBeFalse)
			So(s.PlayableMs, ShouldEqual, 1050)
			So(c.PlayableMs(), ShouldEqual, 1050)
		})

		Convey("Should take the minimum of both metrics", func() {
			s := c.Check(Level{VideoCachedMs: 100, Bytes: 128 * 1024})
			So(s.TimePercent, ShouldEqual, 101)
			So(s.SizePercent, ShouldEqual, 50)
			So(s.Percent, ShouldEqual, 50)
			So(s.Enough, ShouldBeTrue)
		})

		Convey("Should fall back to size when no duration is known", func() {
			s := c.Check(Level{AudioCachedMs: -1, VideoCachedMs: -1, Bytes: 256 * 1024})
			So(s.TimePercent, ShouldEqual, -1)
			So(s.SizePercent, ShouldEqual, 101)
			So(s.Percent, ShouldEqual, 101)
			So(s.Enough, ShouldBeTrue)
			So(s.PlayableMs, ShouldEqual, -1)
		})

		Convey("Should end only when every active queue has packets", func() {
			l := Level{AudioCachedMs: 10000, VideoCachedMs: 10000, IndicatorPackets: 5, AudioPackets: 2, VideoPackets: 10}
			So(c.Check(l).End, ShouldBeFalse)

			l.AudioPackets = 3
			So(c.Check(l).End, ShouldBeTrue)

			l.AudioPackets = -1
			So(c.Check(l).End, ShouldBeTrue)

			l.IndicatorPackets = 0
			So(c.Check(l).End, ShouldBeFalse)
		})
	})
}

func TestLadder(t *testing.T) {
	Convey("Ladder", t, func() {
		c := New(DefaultMarks())
		enough := func(ms int64) Status {
			return c.Check(Level{VideoCachedMs: ms, AudioCachedMs: -1, IndicatorPackets: 10, AudioPackets: -1, VideoPackets: 10})
		}

		Convey("Should escalate from first to next then double up to last", func() {
			So(enough(100).MarkMs, ShouldEqual, 1000)
			So(enough(1000).MarkMs, ShouldEqual, 2000)
			So(enough(2000).MarkMs, ShouldEqual, 4000)
			So(enough(4000).MarkMs, ShouldEqual, 5000)
			So(enough(5000).MarkMs, ShouldEqual, 5000)
		})

		Convey("Should not escalate while short of the mark", func() {
			So(enough(10).MarkMs, ShouldEqual, 100)
		})

		Convey("Should reset to the first mark", func() {
			enough(100)
			enough(1000)
			c.Reset()
			So(c.MarkMs(), ShouldEqual, 100)
		})
	})
}

func TestToggle(t *testing.T) {
	Convey("Toggle", t, func() {
		c := New(DefaultMarks())
		So(c.Buffering(), ShouldBeFalse)
		So(c.Toggle(true), ShouldBeTrue)
		So(c.Toggle(true), ShouldBeFalse)
		So(c.Buffering(), ShouldBeTrue)
		So(c.Percent(), ShouldEqual, 0)
		So(c.Toggle(false), ShouldBeTrue)
		So(c.Buffering(), ShouldBeFalse)
	})
}
