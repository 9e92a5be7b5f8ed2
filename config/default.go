package config

import (
	"strings"

	"github.com/njyeung/avsync/buffering"
	"github.com/njyeung/avsync/player"
)

// Field is a configuration key with its default value
type Field struct {
	Key         string
	Value       any
	Description string
}

// Env returns the environment variable overriding the field
func (f Field) Env() string {
	return strings.ToUpper(EnvPrefix + "_" + EnvKeyReplacer.Replace(f.Key))
}

// Default holds every known field by key
var Default = make(map[string]Field)

// Fields lists the fields in registration order
var Fields []Field

func init() {
	d := player.DefaultOptions()
	register := func(k string, v any, desc string) {
		if _, exists := Default[k]; exists {
			panic("duplicate config key: " + k)
		}
		f := Field{Key: k, Value: v, Description: desc}
		Default[k] = f
		Fields = append(Fields, f)
	}

	register(PlayerSync, "audio", "Master clock: audio, video or ext")
	register(PlayerFrameDrop, d.FrameDrop, "Drop late video frames: 0 never, >0 always, <0 when video is not the master")
	register(PlayerLoop, d.Loop, "Number of plays, 0 loops forever")
	register(PlayerAutoExit, d.AutoExit, "Exit when playback completes")
	register(PlayerStartOnPrepared, d.StartOnPrepared, "Start playing as soon as the input is opened")
	register(PlayerPacketBuffering, d.PacketBuffering, "Pause while the packet queues refill")
	register(PlayerInfiniteBuffer, d.InfiniteBuffer, "Unbounded read ahead: -1 auto, 0 off, 1 on")
	register(PlayerMaxBufferSize, d.MaxBufferSize, "Total packet queue size in bytes before reading waits")
	register(PlayerMinFrames, d.MinFrames, "Packets per queue before reading waits")
	register(PlayerMaxCachedDuration, 0, "Cached duration in ms above which the oldest packets are dropped, 0 disables")
	register(PlayerFirstHighWaterMarkMs, buffering.DefaultFirstMarkMs, "First buffering high water mark in ms")
	register(PlayerNextHighWaterMarkMs, buffering.DefaultNextMarkMs, "Next buffering high water mark in ms")
	register(PlayerLastHighWaterMarkMs, buffering.DefaultLastMarkMs, "Last buffering high water mark in ms")
	register(PlayerHighWaterMarkBytes, buffering.DefaultMarkBytes, "Buffered bytes that end buffering")
	register(PlayerReorderPTS, d.ReorderPTS, "Video timestamp: -1 best effort, 0 dts, 1 pts")
	register(PlayerSyncAVStart, d.SyncAVStart, "Hold audio until the first video frame")
	register(PlayerStartTimeMs, 0, "Play range start in ms")
	register(PlayerDurationMs, 0, "Play range duration in ms, 0 plays to the end")
	register(PlayerSeekAtStartMs, 0, "Initial seek in ms")
	register(PlayerVolume, d.Volume, "Volume, 1 is unchanged")
	register(PlayerRate, d.Rate, "Playback rate")
	register(PlayerDisableAudio, false, "Disable audio")
	register(PlayerDisableVideo, false, "Disable video")
	register(PlayerDisableSubtitle, false, "Disable subtitles")
	register(PlayerSeekByBytes, d.SeekByBytes, "Seek by bytes: -1 auto, 0 off, 1 on")
	register(VideoMaxWidth, 0, "Largest decoded picture width, 0 fits the terminal")
	register(VideoMaxHeight, 0, "Largest decoded picture height, 0 fits the terminal")
	register(VideoThreadCount, 0, "Decoder threads, 0 lets the codec decide")
	register(VideoShm, true, "Send pictures to the terminal through /dev/shm when supported")
	register(ResolveHeadless, true, "Run the resolver browser headless")
	register(ResolveWaitMs, 10000, "How long the resolver waits for the page to load media")
	register(ResolveUserDataDir, "", "Resolver browser profile, empty for a throwaway one")
	register(LogWrite, false, "Write logs")
	register(LogLevel, "info", "panic, fatal, error, warn, info, debug or trace")
	register(LogJSON, false, "Use json format for logs")
}
