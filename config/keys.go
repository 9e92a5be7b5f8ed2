package config

// Configuration keys
const (
	PlayerSync                 = "player.sync"
	PlayerFrameDrop            = "player.framedrop"
	PlayerLoop                 = "player.loop"
	PlayerAutoExit             = "player.autoexit"
	PlayerStartOnPrepared      = "player.start_on_prepared"
	PlayerPacketBuffering      = "player.packet_buffering"
	PlayerInfiniteBuffer       = "player.infinite_buffer"
	PlayerMaxBufferSize        = "player.max_buffer_size"
	PlayerMinFrames            = "player.min_frames"
	PlayerMaxCachedDuration    = "player.max_cached_duration"
	PlayerFirstHighWaterMarkMs = "player.first_high_water_mark_ms"
	PlayerNextHighWaterMarkMs  = "player.next_high_water_mark_ms"
	PlayerLastHighWaterMarkMs  = "player.last_high_water_mark_ms"
	PlayerHighWaterMarkBytes   = "player.high_water_mark_bytes"
	PlayerReorderPTS           = "player.reorder_pts"
	PlayerSyncAVStart          = "player.sync_av_start"
	PlayerStartTimeMs          = "player.start_time_ms"
	PlayerDurationMs           = "player.duration_ms"
	PlayerSeekAtStartMs        = "player.seek_at_start_ms"
	PlayerVolume               = "player.volume"
	PlayerRate                 = "player.rate"
	PlayerDisableAudio         = "player.disable_audio"
	PlayerDisableVideo         = "player.disable_video"
	PlayerDisableSubtitle      = "player.disable_subtitle"
	PlayerSeekByBytes          = "player.seek_by_bytes"

	VideoMaxWidth    = "video.max_width"
	VideoMaxHeight   = "video.max_height"
	VideoThreadCount = "video.thread_count"
	VideoShm         = "video.shm"

	ResolveHeadless    = "resolve.headless"
	ResolveWaitMs      = "resolve.wait_ms"
	ResolveUserDataDir = "resolve.user_data_dir"

	LogWrite = "log.write"
	LogLevel = "log.level"
	LogJSON  = "log.json"
)
