package config

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var allKeys = []string{
	"DATABASE_URL", "REDIS_URL", "REDIS_KEY_PREFIX", "PYTHON_WORKER_URL", "PORT", "LOG_LEVEL",
	"JWT_SECRET", "COLLECTOR_TOP_N", "COLLECTOR_DEDUP_TTL", "COLLECTOR_GLOBAL_POOL_TTL", "COLLECTOR_CRON",
	"YOUTUBE_API_KEY", "COLLECTOR_DEDUP_GLOBAL",
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    *Config
		wantErr bool
	}{
		{
			name:    "missing database url",
			env:     map[string]string{},
			wantErr: true,
		},
		{
			name: "defaults applied",
			env:  map[string]string{"DATABASE_URL": "postgres://localhost/bsforge"},
			want: &Config{
				DatabaseURL:   "postgres://localhost/bsforge",
				RedisPrefix:   "bsforge",
				WorkerURL:     "http://localhost:8000",
				Port:          "8080",
				LogLevel:      "info",
				TopN:          5,
				DedupTTL:      168 * time.Hour,
				GlobalPoolTTL: 4 * time.Hour,
				CollectCron:   "0 */3 * * *",
			},
		},
		{
			name: "all values set",
			env: map[string]string{
				"DATABASE_URL":              "postgres://db/x",
				"REDIS_URL":                 "redis://cache:6379/1",
				"REDIS_KEY_PREFIX":          "stage",
				"PYTHON_WORKER_URL":         "http://worker:9000",
				"PORT":                      "9090",
				"LOG_LEVEL":                 "debug",
				"JWT_SECRET":                "s3cret",
				"COLLECTOR_TOP_N":           "12",
				"COLLECTOR_DEDUP_TTL":       "48h",
				"COLLECTOR_GLOBAL_POOL_TTL": "30m",
				"COLLECTOR_CRON":            "*/15 * * * *",
				"YOUTUBE_API_KEY":           "yt-key",
				"COLLECTOR_DEDUP_GLOBAL":    "true",
			},
			want: &Config{
				DatabaseURL:   "postgres://db/x",
				RedisURL:      "redis://cache:6379/1",
				RedisPrefix:   "stage",
				WorkerURL:     "http://worker:9000",
				Port:          "9090",
				LogLevel:      "debug",
				JWTSecret:     "s3cret",
				TopN:          12,
				DedupTTL:      48 * time.Hour,
				GlobalPoolTTL: 30 * time.Minute,
				CollectCron:   "*/15 * * * *",
				YouTubeAPIKey: "yt-key",
				DedupGlobal:   true,
			},
		},
		{
			name:    "invalid top n",
			env:     map[string]string{"DATABASE_URL": "x", "COLLECTOR_TOP_N": "five"},
			wantErr: true,
		},
		{
			name:    "zero top n",
			env:     map[string]string{"DATABASE_URL": "x", "COLLECTOR_TOP_N": "0"},
			wantErr: true,
		},
		{
			name:    "invalid duration",
			env:     map[string]string{"DATABASE_URL": "x", "COLLECTOR_DEDUP_TTL": "7 days"},
			wantErr: true,
		},
		{
			name:    "invalid dedup global flag",
			env:     map[string]string{"DATABASE_URL": "x", "COLLECTOR_DEDUP_GLOBAL": "sometimes"},
			wantErr: true,
		},
		{
			name:    "negative duration",
			env:     map[string]string{"DATABASE_URL": "x", "COLLECTOR_GLOBAL_POOL_TTL": "-1h"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range allKeys {
				t.Setenv(k, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Load() = %+v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	log := (&Config{LogLevel: "warn"}).NewLogger(&buf)
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("output = %q", buf.String())
	}

	buf.Reset()
	log = (&Config{LogLevel: "loud"}).NewLogger(&buf)
	log.Debug().Msg("dropped")
	log.Info().Msg("kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Fatalf("fallback output = %q", buf.String())
	}
}
