package transcription

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/codebuildervaibhav/transcript-queue/internal/types"
)

// DefaultWatchURL is the watch page prefix the caption tracks are scraped from.
const DefaultWatchURL = "https://www.youtube.com/watch?v="

var (
	ErrNotOk           = errors.New("unexpected non 200 status code")
	ErrTooManyRequests = errors.New("too many requests")
	ErrNoCaptions      = errors.New("no caption tracks")
	ErrNoLanguage      = errors.New("no caption track in requested languages")
	ErrUnavailable     = errors.New("video unavailable")
	ErrEmptyCaptions   = errors.New("caption track is empty")
)

// TrackKind distinguishes uploaded captions from generated ones.
type TrackKind int

const (
	TrackNone TrackKind = iota
	TrackAuto
	TrackManual
)

// CaptionClient looks up published caption tracks for a video.
type CaptionClient struct {
	HTTP     *http.Client
	WatchURL string
}

// NewCaptionClient returns a client with a bounded request timeout.
func NewCaptionClient(timeout time.Duration) *CaptionClient {
	return &CaptionClient{
		HTTP:     &http.Client{Timeout: timeout},
		WatchURL: DefaultWatchURL,
	}
}

type resCaptionsList struct {
	PlayerCaptionsTracklistRenderer struct {
		CaptionTracks []Track
	}
}

// Track is one caption track advertised by the watch page.
type Track struct {
	BaseUrl      string
	LanguageCode string
	Kind         string
}

// Transcript is a parsed caption track.
type Transcript struct {
	Entries []struct {
		Text  string  `xml:",chardata"`
		Start float64 `xml:"start,attr"`
		Dur   float64 `xml:"dur,attr"`
	} `xml:"text"`
}

// Text joins the fragments in order with single spaces.
func (t *Transcript) Text() string {
	parts := make([]string, len(t.Entries))
	for i, e := range t.Entries {
		parts[i] = html.UnescapeString(e.Text)
	}
	return strings.Join(parts, " ")
}

// Fetch implements the queue caption source. Every failure, including
// network trouble, is reported as unavailable with the cause attached.
func (c *CaptionClient) Fetch(ctx context.Context, itemID string, languages []string) types.CaptionResult {
	transcript, track, err := c.Captions(ctx, itemID, languages)
	if err != nil {
		return types.CaptionUnavailable(err)
	}
	text := transcript.Text()
	if strings.TrimSpace(text) == "" {
		return types.CaptionUnavailable(ErrEmptyCaptions)
	}
	return types.CaptionFound(text, track.LanguageCode)
}

// Captions downloads the best track for the first language in languages
// that has one.
func (c *CaptionClient) Captions(ctx context.Context, itemID string, languages []string) (*Transcript, Track, error) {
	content, status, err := c.get(ctx, c.watchURL()+itemID)
	if err != nil {
		return nil, Track{}, fmt.Errorf("requesting watch page: %w", err)
	}
	sContent := string(content)

	if strings.Contains(sContent, `action="https://consent.youtube.com/s"`) {
		return nil, Track{}, fmt.Errorf("got consent form for %q: %w", itemID, ErrUnavailable)
	}
	if status == http.StatusTooManyRequests {
		return nil, Track{}, fmt.Errorf("watch page %q: %w", itemID, ErrTooManyRequests)
	}
	if status != http.StatusOK {
		return nil, Track{}, fmt.Errorf("watch page code %d: %w", status, ErrNotOk)
	}

	split := strings.Split(sContent, `"captions":`)
	if len(split) <= 1 {
		if strings.Contains(sContent, `class="g-recaptcha"`) {
			return nil, Track{}, fmt.Errorf("video %q got captcha: %w", itemID, ErrTooManyRequests)
		}
		if strings.Contains(sContent, `"playabilityStatus"`) && strings.Contains(sContent, `"ERROR"`) {
			return nil, Track{}, fmt.Errorf("video %q not playable: %w", itemID, ErrUnavailable)
		}
		return nil, Track{}, ErrNoCaptions
	}

	rawCaptions := strings.ReplaceAll(strings.Split(split[1], `,"videoDetails`)[0], "\n", "")
	var list resCaptionsList
	if err := json.Unmarshal([]byte(rawCaptions), &list); err != nil {
		return nil, Track{}, fmt.Errorf("unmarshal caption list: %w", err)
	}

	track, kind := pickTrack(list.PlayerCaptionsTracklistRenderer.CaptionTracks, languages)
	if kind == TrackNone {
		if len(list.PlayerCaptionsTracklistRenderer.CaptionTracks) == 0 {
			return nil, Track{}, ErrNoCaptions
		}
		return nil, Track{}, fmt.Errorf("%w: %s", ErrNoLanguage, strings.Join(languages, ","))
	}

	body, status, err := c.get(ctx, html.UnescapeString(track.BaseUrl))
	if err != nil {
		return nil, Track{}, fmt.Errorf("captions request: %w", err)
	}
	if status != http.StatusOK {
		return nil, Track{}, fmt.Errorf("captions file status code %d: %w", status, ErrNotOk)
	}

	var transcript Transcript
	if err := xml.Unmarshal(body, &transcript); err != nil {
		return nil, Track{}, fmt.Errorf("parse transcript xml: %w", err)
	}
	if len(transcript.Entries) == 0 {
		return nil, Track{}, ErrEmptyCaptions
	}
	return &transcript, track, nil
}

func (c *CaptionClient) watchURL() string {
	if c.WatchURL == "" {
		return DefaultWatchURL
	}
	return c.WatchURL
}

func (c *CaptionClient) get(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, res.StatusCode, fmt.Errorf("reading response body: %w", err)
	}
	return body, res.StatusCode, nil
}

// pickTrack walks the preferred languages in order. Within a language an
// uploaded track beats a generated one.
func pickTrack(tracks []Track, languages []string) (Track, TrackKind) {
	for _, lang := range languages {
		for _, t := range tracks {
			if t.LanguageCode == lang && t.Kind != "asr" {
				return t, TrackManual
			}
		}
		for _, t := range tracks {
			if t.LanguageCode == lang {
				return t, TrackAuto
			}
		}
	}
	return Track{}, TrackNone
}
