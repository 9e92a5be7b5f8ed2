package config

import (
	"testing"
	"time"

	"github.com/njyeung/avsync/clock"
	"github.com/njyeung/avsync/player"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const testConfig = `
[player]
sync = "video"
loop = 0
volume = 0.5
max_cached_duration = 2000
first_high_water_mark_ms = 200

[log]
write = true
`

func TestSetup(t *testing.T) {
	Convey("Config setup", t, func() {
		viper.Reset()
		fs := afero.NewMemMapFs()

		Convey("Without a file the defaults apply", func() {
			So(Setup(fs, "/cfg"), ShouldBeNil)
			for _, f := range Fields {
				So(viper.Get(f.Key), ShouldNotBeNil)
			}

			o, err := PlayerOptions()
			So(err, ShouldBeNil)
			d := player.DefaultOptions()
			So(o.Sync, ShouldEqual, d.Sync)
			So(o.Loop, ShouldEqual, d.Loop)
			So(o.Marks, ShouldResemble, d.Marks)
			So(o.Volume, ShouldEqual, 1)
			So(o.Rate, ShouldEqual, 1)
		})

		Convey("The file overrides the defaults", func() {
			So(afero.WriteFile(fs, "/cfg/avsync.toml", []byte(testConfig), 0644), ShouldBeNil)
			So(Setup(fs, "/cfg"), ShouldBeNil)
			So(viper.GetBool(LogWrite), ShouldBeTrue)

			o, err := PlayerOptions()
			So(err, ShouldBeNil)
			So(o.Sync, ShouldEqual, clock.VideoMaster)
			So(o.Loop, ShouldEqual, 0)
			So(o.Volume, ShouldEqual, 0.5)
			So(o.MaxCachedDuration, ShouldEqual, 2*time.Second)
			So(o.Marks.FirstMs, ShouldEqual, 200)
		})

		Convey("The environment overrides the file", func() {
			t.Setenv("AVSYNC_PLAYER_LOOP", "3")
			So(afero.WriteFile(fs, "/cfg/avsync.toml", []byte(testConfig), 0644), ShouldBeNil)
			So(Setup(fs, "/cfg"), ShouldBeNil)

			o, err := PlayerOptions()
			So(err, ShouldBeNil)
			So(o.Loop, ShouldEqual, 3)
		})

		Convey("A broken file is reported", func() {
			So(afero.WriteFile(fs, "/cfg/avsync.toml", []byte("[player\n"), 0644), ShouldBeNil)
			So(Setup(fs, "/cfg"), ShouldNotBeNil)
		})

		Convey("Invalid values are rejected", func() {
			So(Setup(fs, "/cfg"), ShouldBeNil)

			viper.Set(PlayerSync, "bogus")
			_, err := PlayerOptions()
			So(err, ShouldNotBeNil)

			viper.Set(PlayerSync, "ext")
			viper.Set(PlayerRate, 0)
			_, err = PlayerOptions()
			So(err, ShouldNotBeNil)
		})

		Convey("Write keeps an existing file unless forced", func() {
			So(Setup(fs, "/cfg"), ShouldBeNil)
			path, err := Write(fs, "/cfg", false)
			So(err, ShouldBeNil)
			So(path, ShouldEqual, "/cfg/avsync.toml")
			ok, _ := afero.Exists(fs, path)
			So(ok, ShouldBeTrue)

			_, err = Write(fs, "/cfg", false)
			So(err, ShouldNotBeNil)
			_, err = Write(fs, "/cfg", true)
			So(err, ShouldBeNil)
		})

		Convey("Env names follow the keys", func() {
			So(Default[PlayerMaxBufferSize].Env(), ShouldEqual, "AVSYNC_PLAYER_MAX_BUFFER_SIZE")
			So(EnvKeyReplacer.Replace("log.level"), ShouldEqual, "log_level")
		})
	})
}
