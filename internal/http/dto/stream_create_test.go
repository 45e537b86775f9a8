package dto

import (
	"encoding/json"
	"testing"
)

func decode(t *testing.T, body string) *StreamCreate {
	t.Helper()
	var req StreamCreate
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("unmarshal %q: %v", body, err)
	}
	return &req
}

func TestToConfigDefaults(t *testing.T) {
	req := decode(t, `{"url":"rtsp://cam.local/live"}`)

	cfg, err := req.ToConfig()
	if err != nil {
		t.Fatalf("ToConfig() error = %v", err)
	}
	if cfg.URL != "rtsp://cam.local/live" {
		t.Errorf("URL = %q", cfg.URL)
	}
	if cfg.Quality != DefaultQuality {
		t.Errorf("Quality = %q, want default %q", cfg.Quality, DefaultQuality)
	}
	if cfg.Resolution != DefaultResolution {
		t.Errorf("Resolution = %q, want default %q", cfg.Resolution, DefaultResolution)
	}
	if cfg.FPS != DefaultFPS {
		t.Errorf("FPS = %d, want default %d", cfg.FPS, DefaultFPS)
	}
	if cfg.ID != 0 {
		t.Errorf("ID = %d, want 0 (registry-assigned)", cfg.ID)
	}
}

func TestToConfigExplicitValues(t *testing.T) {
	req := decode(t, `{"url":"rtsp://cam","quality":"12","resolution":"1280x720","fps":30}`)

	cfg, err := req.ToConfig()
	if err != nil {
		t.Fatalf("ToConfig() error = %v", err)
	}
	if cfg.Quality != "12" || cfg.Resolution != "1280x720" || cfg.FPS != 30 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestToConfigRejections(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing url", `{"fps":10}`},
		{"null url", `{"url":null}`},
		{"null quality", `{"url":"rtsp://cam","quality":null}`},
		{"null resolution", `{"url":"rtsp://cam","resolution":null}`},
		{"null fps", `{"url":"rtsp://cam","fps":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decode(t, tt.body).ToConfig(); err == nil {
				t.Fatal("ToConfig() error = nil, want rejection")
			}
		})
	}
}
