package clock

import (
	"fmt"
	"math"
	"strings"
)

const (
	// SyncThresholdMin is the lower bound of the A/V correction threshold
	SyncThresholdMin = 0.04
	// SyncThresholdMax is the upper bound of the A/V correction threshold
	SyncThresholdMax = 0.1
	// SyncFrameDupThreshold is the frame duration above which a late frame is not duplicated
	SyncFrameDupThreshold = 0.1
	// NoSyncThreshold is the drift beyond which no correction is attempted
	NoSyncThreshold = 10.0

	// Realtime sources nudge the external clock speed on queue fullness
	ExternalClockMinFrames  = 2
	ExternalClockMaxFrames  = 10
	ExternalClockSpeedMin   = 0.900
	ExternalClockSpeedMax   = 1.010
	ExternalClockSpeedStep  = 0.001
	MaxFrameDurationDiscont = 10.0
	MaxFrameDurationDefault = 3600.0
)

// SyncType names which clock drives presentation
type SyncType int

const (
	AudioMaster SyncType = iota
	VideoMaster
	ExternalClock
)

func (s SyncType) String() string {
	switch s {
	case AudioMaster:
		return "audio"
	case VideoMaster:
		return "video"
	default:
		return "ext"
	}
}

// ParseSyncType parses audio, video or ext
func ParseSyncType(s string) (SyncType, error) {
	switch strings.ToLower(s) {
	case "audio", "":
		return AudioMaster, nil
	case "video":
		return VideoMaster, nil
	case "ext", "external":
		return ExternalClock, nil
	default:
		return AudioMaster, fmt.Errorf("unknown sync type %q", s)
	}
}

// Master resolves the configured mode against the streams actually present. Video falls
// back to audio, audio falls back to the external clock
func Master(mode SyncType, hasVideo, hasAudio bool) SyncType {
	switch mode {
	case VideoMaster:
		if hasVideo {
			return VideoMaster
		}
		if hasAudio {
			return AudioMaster
		}
		return ExternalClock
	case AudioMaster:
		if hasAudio {
			return AudioMaster
		}
		return ExternalClock
	default:
		return ExternalClock
	}
}

// TargetDelay adjusts the nominal delay before the next video frame given the video clock
// minus master clock difference. It shrinks the delay when video is late and doubles or
// extends it when video is early
func TargetDelay(delay, diff float64) float64 {
	threshold := math.Max(SyncThresholdMin, math.Min(SyncThresholdMax, delay))
	if math.IsNaN(diff) || math.Abs(diff) >= NoSyncThreshold {
		return delay
	}
	switch {
	case diff <= -threshold:
		return math.Max(0, delay+diff)
	case diff >= threshold && delay > SyncFrameDupThreshold:
		return delay + diff
	case diff >= threshold:
		return 2 * delay
	}
	return delay
}

// ExternalSpeed returns the next external clock speed for a realtime source given the
// number of queued packets of the active streams (negative when the stream is absent)
func ExternalSpeed(speed float64, videoPackets, audioPackets int) float64 {
	if (videoPackets >= 0 && videoPackets <= ExternalClockMinFrames) ||
		(audioPackets >= 0 && audioPackets <= ExternalClockMinFrames) {
		return math.Max(ExternalClockSpeedMin, speed-ExternalClockSpeedStep)
	}
	if (videoPackets < 0 || videoPackets > ExternalClockMaxFrames) &&
		(audioPackets < 0 || audioPackets > ExternalClockMaxFrames) {
		return math.Min(ExternalClockSpeedMax, speed+ExternalClockSpeedStep)
	}
	if speed != 1.0 {
		return speed + ExternalClockSpeedStep*(1.0-speed)/math.Abs(1.0-speed)
	}
	return speed
}
