package dto

import (
	"errors"

	"github.com/camfeed/camfeed-server/internal/domain/stream"
)

// Encoding defaults applied when the client omits a field.
const (
	DefaultQuality    = "5"
	DefaultResolution = "640x480"
	DefaultFPS        = 15
)

// StreamCreate is the DTO for registering a new camera stream via
// POST /api/streams.
//   - url is required; encoding fields are optional with defaults applied.
type StreamCreate struct {
	URL        W[string] `json:"url"`        // required; string
	Quality    W[string] `json:"quality"`    // optional; string (default: "5")
	Resolution W[string] `json:"resolution"` // optional; string (default: "640x480")
	FPS        W[int]    `json:"fps"`        // optional; int    (default: 15)
}

// ToConfig maps StreamCreate → stream.Config.
// Disallows explicit null assignment.
// Fills unset fields with defaults. The ID is left for the registry to assign.
func (req *StreamCreate) ToConfig() (*stream.Config, error) {
	cfg := &stream.Config{}

	// url
	// required; string
	if !req.URL.Set || req.URL.Null {
		return nil, errors.New("url is required")
	}
	cfg.URL = req.URL.V

	// quality
	// optional; string (default: "5")
	if req.Quality.Set {
		if req.Quality.Null {
			return nil, errors.New("quality cannot be null")
		}
		cfg.Quality = req.Quality.V
	} else {
		cfg.Quality = DefaultQuality
	}

	// resolution
	// optional; string (default: "640x480")
	if req.Resolution.Set {
		if req.Resolution.Null {
			return nil, errors.New("resolution cannot be null")
		}
		cfg.Resolution = req.Resolution.V
	} else {
		cfg.Resolution = DefaultResolution
	}

	// fps
	// optional; int (default: 15)
	if req.FPS.Set {
		if req.FPS.Null {
			return nil, errors.New("fps cannot be null")
		}
		cfg.FPS = req.FPS.V
	} else {
		cfg.FPS = DefaultFPS
	}

	return cfg, nil
}
