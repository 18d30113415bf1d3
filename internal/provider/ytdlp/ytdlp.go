// Package ytdlp resolves media identifiers by running the yt-dlp binary and
// reading its JSON description of the item.
package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/your-org/mediaresolver/internal/resolver"
)

const (
	defaultBinary = "yt-dlp"
	watchURLBase  = "https://music.youtube.com/watch?v="
	maxStderr     = 2048

	defaultReuseTTL   = time.Minute
	defaultReuseItems = 256
)

// Runner executes yt-dlp and returns its stdout.
type Runner interface {
	Run(ctx context.Context, binary string, args ...string) ([]byte, error)
}

// ExecRunner runs the binary as a child process.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, binary string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderr {
			msg = msg[len(msg)-maxStderr:]
		}
		if msg == "" {
			return nil, fmt.Errorf("run %s: %w", binary, err)
		}
		return nil, fmt.Errorf("run %s: %w: %s", binary, err, msg)
	}
	return stdout.Bytes(), nil
}

type Params struct {
	Binary    string
	ExtraArgs []string
	Runner    Runner
	Logger    *zap.Logger
	// ReuseTTL bounds how long an extraction made by Resolve may serve
	// SongMetadata for the same identifier.
	ReuseTTL time.Duration
}

// Client implements resolver.Engine and resolver.Catalog. Resolve always runs
// yt-dlp; SongMetadata reuses the description Resolve just fetched, so one
// resolution costs a single process run.
type Client struct {
	binary    string
	extraArgs []string
	runner    Runner
	logger    *zap.Logger
	recent    *expirable.LRU[string, *info]
}

var (
	_ resolver.Engine  = (*Client)(nil)
	_ resolver.Catalog = (*Client)(nil)
)

func NewClient(p Params) *Client {
	if p.Binary == "" {
		p.Binary = defaultBinary
	}
	if p.Runner == nil {
		p.Runner = ExecRunner{}
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.ReuseTTL <= 0 {
		p.ReuseTTL = defaultReuseTTL
	}
	return &Client{
		binary:    p.Binary,
		extraArgs: p.ExtraArgs,
		runner:    p.Runner,
		logger:    p.Logger,
		recent:    expirable.NewLRU[string, *info](defaultReuseItems, nil, p.ReuseTTL),
	}
}

// info is the subset of yt-dlp's -J output the service reads.
type info struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Formats    []formatInfo    `json:"formats"`
	Thumbnails []thumbnailInfo `json:"thumbnails"`
}

type formatInfo struct {
	FormatID string   `json:"format_id"`
	URL      string   `json:"url"`
	VCodec   string   `json:"vcodec"`
	ACodec   string   `json:"acodec"`
	ABR      *float64 `json:"abr"`
}

type thumbnailInfo struct {
	URL        string `json:"url"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Preference int    `json:"preference"`
}

// Resolve lists the formats yt-dlp offers for identifier.
func (c *Client) Resolve(ctx context.Context, identifier string) ([]resolver.Candidate, error) {
	inf, err := c.extract(ctx, identifier)
	if err != nil {
		return nil, err
	}
	c.recent.Add(identifier, inf)
	candidates := make([]resolver.Candidate, 0, len(inf.Formats))
	for _, f := range inf.Formats {
		if f.URL == "" {
			continue
		}
		candidates = append(candidates, toCandidate(f))
	}
	c.logger.Debug("formats extracted",
		zap.String("identifier", identifier),
		zap.Int("formats", len(inf.Formats)),
		zap.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

// SongMetadata returns the title and thumbnails, lowest resolution first.
func (c *Client) SongMetadata(ctx context.Context, identifier string) (*resolver.SongMetadata, error) {
	inf, ok := c.recent.Get(identifier)
	if !ok {
		var err error
		if inf, err = c.extract(ctx, identifier); err != nil {
			return nil, err
		}
	}
	thumbs := orderThumbnails(inf.Thumbnails)
	if len(thumbs) == 0 {
		return nil, fmt.Errorf("%w: no thumbnails for %s", resolver.ErrMetadataNotFound, identifier)
	}
	return &resolver.SongMetadata{Title: inf.Title, Thumbnails: thumbs}, nil
}

func (c *Client) extract(ctx context.Context, identifier string) (*info, error) {
	args := append([]string{}, c.extraArgs...)
	args = append(args, "-J", "--no-playlist", "--no-warnings", WatchURL(identifier))

	out, err := c.runner.Run(ctx, c.binary, args...)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", identifier, err)
	}
	var inf info
	if err := json.Unmarshal(out, &inf); err != nil {
		return nil, fmt.Errorf("decode yt-dlp output for %s: %w", identifier, err)
	}
	if inf.ID == "" && len(inf.Formats) == 0 {
		return nil, errors.New("yt-dlp returned an empty description")
	}
	return &inf, nil
}

// WatchURL builds the watch page URL for a media identifier.
func WatchURL(identifier string) string {
	return watchURLBase + url.QueryEscape(identifier)
}

func toCandidate(f formatInfo) resolver.Candidate {
	c := resolver.Candidate{
		// "none" is how yt-dlp marks an absent stream; a missing field is
		// treated as a video track so the format is never picked blindly.
		HasVideoTrack: f.VCodec != "none",
		URL:           f.URL,
	}
	if f.ACodec != "none" {
		c.AudioCodec = f.ACodec
	}
	if f.ABR != nil {
		c.AudioBitrate = *f.ABR
	}
	return c
}

// orderThumbnails drops entries without a URL and sorts the rest by yt-dlp
// preference, then pixel area, ascending. The stable sort keeps yt-dlp's own
// order for ties.
func orderThumbnails(in []thumbnailInfo) []resolver.Thumbnail {
	kept := make([]thumbnailInfo, 0, len(in))
	for _, t := range in {
		if t.URL != "" {
			kept = append(kept, t)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Preference != kept[j].Preference {
			return kept[i].Preference < kept[j].Preference
		}
		return kept[i].Width*kept[i].Height < kept[j].Width*kept[j].Height
	})
	out := make([]resolver.Thumbnail, 0, len(kept))
	for _, t := range kept {
		out = append(out, resolver.Thumbnail{URL: t.URL, Width: t.Width, Height: t.Height})
	}
	return out
}
