package ffmpeg

import (
	"testing"

	"github.com/asticode/go-astiav"
	"github.com/njyeung/avsync/media"
	"github.com/stretchr/testify/require"
)

func TestFit(t *testing.T) {
	w, h := fit(1920, 1080, 0, 0)
	require.Equal(t, []int{1920, 1080}, []int{w, h})

	w, h = fit(1920, 1080, 960, 0)
	require.Equal(t, []int{960, 540}, []int{w, h})

	w, h = fit(1920, 1080, 960, 270)
	require.Equal(t, []int{480, 270}, []int{w, h})

	w, h = fit(320, 240, 960, 540)
	require.Equal(t, []int{320, 240}, []int{w, h})

	w, h = fit(0, 0, 960, 540)
	require.Equal(t, []int{0, 0}, []int{w, h})
}

func TestKind(t *testing.T) {
	require.Equal(t, media.KindVideo, kind(astiav.MediaTypeVideo))
	require.Equal(t, media.KindAudio, kind(astiav.MediaTypeAudio))
	require.Equal(t, media.KindSubtitle, kind(astiav.MediaTypeSubtitle))
	require.Equal(t, media.KindUnknown, kind(astiav.MediaTypeAttachment))
}

func TestOpenCodecWithoutParameters(t *testing.T) {
	_, err := NewCodecOpener(CodecOptions{}).OpenCodec(media.StreamInfo{Index: 2, Kind: media.KindVideo})
	require.ErrorIs(t, err, media.ErrUnsupported)
}

func TestSourceNetwork(t *testing.T) {
	require.True(t, (&Source{uri: "HTTPS://host/a.m3u8"}).network())
	require.True(t, (&Source{uri: "rtsp://cam/1"}).network())
	require.False(t, (&Source{uri: "/tmp/a.mp4"}).network())
	require.False(t, (&Source{uri: "file:///tmp/a.mp4"}).network())
}
