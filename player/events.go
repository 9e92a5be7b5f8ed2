package player

import (
	"github.com/asticode/go-astikit"
	"github.com/njyeung/avsync/media"
)

// Events emitted by a player. Handlers run on the emitting goroutine and must not block
const (
	EventOpenInput           astikit.EventName = "player.open.input"
	EventFindStreamInfo      astikit.EventName = "player.find.stream.info"
	EventComponentOpen       astikit.EventName = "player.component.open"
	EventPrepared            astikit.EventName = "player.prepared"
	EventBufferingStart      astikit.EventName = "player.buffering.start"
	EventBufferingUpdate     astikit.EventName = "player.buffering.update"
	EventBufferingEnd        astikit.EventName = "player.buffering.end"
	EventSeekComplete        astikit.EventName = "player.seek.complete"
	EventCompleted           astikit.EventName = "player.completed"
	EventError               astikit.EventName = "player.error"
	EventVideoSizeChanged    astikit.EventName = "player.video.size.changed"
	EventSARChanged          astikit.EventName = "player.sar.changed"
	EventVideoDecodedStart   astikit.EventName = "player.video.decoded.start"
	EventAudioDecodedStart   astikit.EventName = "player.audio.decoded.start"
	EventVideoRenderingStart astikit.EventName = "player.video.rendering.start"
	EventAudioRenderingStart astikit.EventName = "player.audio.rendering.start"
	EventTimedText           astikit.EventName = "player.timed.text"
)

// BufferingUpdate is the payload of EventBufferingUpdate
type BufferingUpdate struct {
	PositionMs int64
	Percent    int
}

// SeekComplete is the payload of EventSeekComplete
type SeekComplete struct {
	PositionMs int64
	Err        error
}

// VideoSize is the payload of EventVideoSizeChanged and EventSARChanged
type VideoSize struct {
	Width  int
	Height int
}

// TimedText is the payload of EventTimedText. An empty text clears the cue
type TimedText struct {
	Text []string
}

// ComponentOpen is the payload of EventComponentOpen
type ComponentOpen struct {
	Stream media.StreamInfo
}

// Prepared is the payload of EventPrepared
type Prepared struct {
	Info       media.SourceInfo
	DurationMs int64
}
