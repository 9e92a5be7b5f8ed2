// Package config loads the player settings from a toml file, the environment and defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/njyeung/avsync/buffering"
	"github.com/njyeung/avsync/clock"
	"github.com/njyeung/avsync/player"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const (
	// Name is the config file name and the application directory name
	Name = "avsync"

	// EnvPrefix prefixes every environment override
	EnvPrefix = "AVSYNC"

	// EnvConfigPath overrides the config directory
	EnvConfigPath = "AVSYNC_CONFIG_PATH"
)

// EnvKeyReplacer maps keys to environment variable names
var EnvKeyReplacer = strings.NewReplacer(".", "_")

// Dir returns the config directory
func Dir() (string, error) {
	if custom, ok := os.LookupEnv(EnvConfigPath); ok {
		return custom, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config dir: %w", err)
	}
	return filepath.Join(base, Name), nil
}

// Setup registers defaults and environment bindings then reads dir/avsync.toml from fs.
// A missing file is not an error
func Setup(fs afero.Fs, dir string) error {
	viper.SetConfigName(Name)
	viper.SetConfigType("toml")
	viper.SetFs(fs)
	viper.AddConfigPath(dir)

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(EnvKeyReplacer)
	for _, f := range Fields {
		viper.MustBindEnv(f.Key)
	}

	viper.SetTypeByDefaultValue(true)
	for _, f := range Fields {
		viper.SetDefault(f.Key, f.Value)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// Write saves the current settings to dir/avsync.toml. An existing file is kept unless
// force is set
func Write(fs afero.Fs, dir string, force bool) (string, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config dir: %w", err)
	}
	path := filepath.Join(dir, Name+".toml")
	write := viper.SafeWriteConfigAs
	if force {
		write = viper.WriteConfigAs
	}
	if err := write(path); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}
	return path, nil
}

// PlayerOptions builds the player settings from the loaded configuration. Collaborators
// are left for the caller to set
func PlayerOptions() (player.Options, error) {
	o := player.DefaultOptions()

	sync, err := clock.ParseSyncType(viper.GetString(PlayerSync))
	if err != nil {
		return o, fmt.Errorf("%s: %w", PlayerSync, err)
	}
	o.Sync = sync
	o.FrameDrop = viper.GetInt(PlayerFrameDrop)
	o.Loop = viper.GetInt(PlayerLoop)
	o.AutoExit = viper.GetBool(PlayerAutoExit)
	o.StartOnPrepared = viper.GetBool(PlayerStartOnPrepared)
	o.PacketBuffering = viper.GetBool(PlayerPacketBuffering)
	o.InfiniteBuffer = viper.GetInt(PlayerInfiniteBuffer)
	o.MaxBufferSize = viper.GetInt(PlayerMaxBufferSize)
	o.MinFrames = viper.GetInt(PlayerMinFrames)
	o.MaxCachedDuration = ms(PlayerMaxCachedDuration)
	o.Marks = buffering.Marks{
		FirstMs: viper.GetInt(PlayerFirstHighWaterMarkMs),
		NextMs:  viper.GetInt(PlayerNextHighWaterMarkMs),
		LastMs:  viper.GetInt(PlayerLastHighWaterMarkMs),
		Bytes:   viper.GetInt(PlayerHighWaterMarkBytes),
	}
	o.ReorderPTS = viper.GetInt(PlayerReorderPTS)
	o.SyncAVStart = viper.GetBool(PlayerSyncAVStart)
	o.StartTime = ms(PlayerStartTimeMs)
	o.Duration = ms(PlayerDurationMs)
	o.SeekAtStart = ms(PlayerSeekAtStartMs)
	o.DisableAudio = viper.GetBool(PlayerDisableAudio)
	o.DisableVideo = viper.GetBool(PlayerDisableVideo)
	o.DisableSubtitle = viper.GetBool(PlayerDisableSubtitle)
	o.SeekByBytes = viper.GetInt(PlayerSeekByBytes)

	o.Volume = viper.GetFloat64(PlayerVolume)
	if o.Volume < 0 {
		return o, fmt.Errorf("%s: negative volume %v", PlayerVolume, o.Volume)
	}
	o.Rate = viper.GetFloat64(PlayerRate)
	if o.Rate <= 0 {
		return o, fmt.Errorf("%s: rate must be positive, got %v", PlayerRate, o.Rate)
	}
	return o, nil
}

func ms(key string) time.Duration {
	return time.Duration(viper.GetInt64(key)) * time.Millisecond
}
