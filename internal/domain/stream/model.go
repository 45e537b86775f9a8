package stream

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
)

// Config describes one registered camera source.
//
// Owned by the registry; the feed pipeline only ever reads a snapshot of it
// at request time and never mutates it.
type Config struct {
	ID         int64  `json:"id"`         // registry-assigned, unique
	URL        string `json:"url"`        // RTSP source URL
	Quality    string `json:"quality"`    // encoder q:v value, "1".."31" (lower = better)
	Resolution string `json:"resolution"` // "WxH", e.g. "640x480"
	FPS        int    `json:"fps"`        // target output frame rate
}

// resolutionRe matches "<width>x<height>" with no leading zeros enforced;
// ffmpeg's scale filter accepts plain pixel dimensions.
var resolutionRe = regexp.MustCompile(`^[1-9][0-9]{0,4}x[1-9][0-9]{0,4}$`)

// Validate checks a Config against registry admission rules.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("url is required")
	}
	if len(c.URL) > 2048 {
		return errors.New("url must be at most 2048 characters")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %s", err)
	}
	// Scheme is mandatory; ffmpeg falls back to local files on a bare path
	// and the registry must not admit that kind of source.
	if u.Scheme == "" {
		return errors.New("invalid url: missing protocol")
	}

	q, err := strconv.Atoi(c.Quality)
	if err != nil {
		return errors.New("quality must be an integer")
	}
	if q < 1 || q > 31 {
		return errors.New("quality must be within 1-31")
	}

	if !resolutionRe.MatchString(c.Resolution) {
		return errors.New(`resolution must be of the form "WxH"`)
	}

	if c.FPS < 1 {
		return errors.New("fps must be at least 1")
	}
	if c.FPS > 120 {
		return errors.New("fps must be at most 120")
	}

	return nil
}
