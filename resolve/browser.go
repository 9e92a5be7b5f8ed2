// Package resolve turns web page URLs into the media URL the page plays
package resolve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// ErrNoMedia is returned when the page did not load any media resource
var ErrNoMedia = errors.New("no media found on page")

var (
	mediaExtensions = []string{".m3u8", ".mpd", ".mp4", ".m4v", ".m4a", ".webm", ".mkv", ".mov", ".flv", ".mp3", ".ogg", ".aac", ".wav", ".flac"}
	mediaMimes      = []string{"video/", "audio/", "application/vnd.apple.mpegurl", "application/x-mpegurl", "application/dash+xml"}
)

// The DOM fallback, used when no media response was observed
const currentSourcesJS = `
	(() => {
		const out = [];
		for (const el of document.querySelectorAll('video, audio')) {
			if (el.currentSrc) out.push(el.currentSrc);
			for (const s of el.querySelectorAll('source[src]')) out.push(s.src);
		}
		return out;
	})()
`

// Options configures the headless browser
type Options struct {
	// Persistent profile, empty for a throwaway one
	UserDataDir string
	Headless    bool

	// How long to wait for the page to request media
	Wait time.Duration

	Logger logrus.FieldLogger
}

// Browser resolves page URLs by loading them in Chrome and watching the network
type Browser struct {
	o Options
	l logrus.FieldLogger
}

// New creates a resolver
func New(o Options) *Browser {
	if o.Wait <= 0 {
		o.Wait = 10 * time.Second
	}
	l := o.Logger
	if l == nil {
		dl := logrus.New()
		dl.SetOutput(io.Discard)
		l = dl
	}
	return &Browser{o: o, l: l.WithField("component", "resolve")}
}

// NeedsResolve reports whether uri is a web page rather than a media resource
func NeedsResolve(uri string) bool {
	u, err := url.Parse(uri)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	return !lo.Contains(mediaExtensions, strings.ToLower(path.Ext(u.Path)))
}

// IsMedia reports whether a response looks like playable media
func IsMedia(mimeType, rawURL string) bool {
	mimeType = strings.ToLower(mimeType)
	if lo.SomeBy(mediaMimes, func(m string) bool { return strings.HasPrefix(mimeType, m) }) {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	return lo.Contains(mediaExtensions, strings.ToLower(path.Ext(u.Path)))
}

// Pick chooses the best candidate: manifests first, then the first media seen
func Pick(base string, candidates []string) (string, error) {
	abs := lo.Uniq(lo.FilterMap(candidates, func(c string, _ int) (string, bool) {
		a, err := absolute(base, c)
		return a, err == nil
	}))
	if len(abs) == 0 {
		return "", ErrNoMedia
	}
	if m, ok := lo.Find(abs, func(c string) bool {
		ext := strings.ToLower(path.Ext(lo.Must(url.Parse(c)).Path))
		return ext == ".m3u8" || ext == ".mpd"
	}); ok {
		return m, nil
	}
	return abs[0], nil
}

// absolute resolves ref against base, dropping blob and data URLs
func absolute(base, ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u := b.ResolveReference(r)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// Resolve loads pageURL and returns the media URL it plays
func (b *Browser) Resolve(ctx context.Context, pageURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("headless", b.o.Headless),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
	)
	if b.o.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(b.o.UserDataDir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()
	bctx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(b.l.Debugf))
	defer cancel()

	found := make(chan string, 64)
	chromedp.ListenTarget(bctx, func(ev any) {
		if e, ok := ev.(*network.EventResponseReceived); ok && e.Response != nil {
			if IsMedia(e.Response.MimeType, e.Response.URL) {
				select {
				case found <- e.Response.URL:
				default:
				}
			}
		}
	})

	l := b.l.WithField("url", pageURL)
	l.Debug("loading page")
	if err := chromedp.Run(bctx, network.Enable(), chromedp.Navigate(pageURL)); err != nil {
		return "", fmt.Errorf("failed to navigate: %w", err)
	}

	var candidates []string
	t := time.NewTimer(b.o.Wait)
	defer t.Stop()
	select {
	case u := <-found:
		candidates = append(candidates, u)
		// keep collecting what follows the first response
		drain := time.After(500 * time.Millisecond)
	collect:
		for {
			select {
			case u := <-found:
				candidates = append(candidates, u)
			case <-drain:
				break collect
			}
		}
	case <-t.C:
		var srcs []string
		if err := chromedp.Run(bctx, chromedp.Evaluate(currentSourcesJS, &srcs)); err != nil {
			return "", fmt.Errorf("failed to read media elements: %w", err)
		}
		candidates = srcs
	case <-ctx.Done():
		return "", ctx.Err()
	}

	u, err := Pick(pageURL, candidates)
	if err != nil {
		return "", err
	}
	l.WithField("media", u).Info("page resolved")
	return u, nil
}
