package model

import (
	"strings"
	"time"
)

type Channel struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ConfigYAML string    `json:"config_yaml"`
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type TopicStatus string

const (
	TopicPending  TopicStatus = "pending"
	TopicApproved TopicStatus = "approved"
	TopicRejected TopicStatus = "rejected"
	TopicUsed     TopicStatus = "used"
	TopicExpired  TopicStatus = "expired"
)

type ScriptStatus string

const (
	ScriptGenerated ScriptStatus = "generated"
	ScriptReviewed  ScriptStatus = "reviewed"
	ScriptApproved  ScriptStatus = "approved"
	ScriptProduced  ScriptStatus = "produced"
	ScriptRejected  ScriptStatus = "rejected"
)

type VideoStatus string

const (
	VideoGenerating VideoStatus = "generating"
	VideoGenerated  VideoStatus = "generated"
	VideoReviewed   VideoStatus = "reviewed"
	VideoApproved   VideoStatus = "approved"
	VideoRejected   VideoStatus = "rejected"
	VideoUploaded   VideoStatus = "uploaded"
	VideoFailed     VideoStatus = "failed"
	VideoArchived   VideoStatus = "archived"
)

type UploadStatus string

const (
	UploadPending    UploadStatus = "pending"
	UploadScheduled  UploadStatus = "scheduled"
	UploadUploading  UploadStatus = "uploading"
	UploadProcessing UploadStatus = "processing"
	UploadCompleted  UploadStatus = "completed"
	UploadFailed     UploadStatus = "failed"
)

// Topic is a collected, scored candidate owned by a channel.
type Topic struct {
	ID              string              `json:"id"`
	ChannelID       string              `json:"channel_id"`
	SourceID        *string             `json:"source_id,omitempty"`
	TitleOriginal   string              `json:"title_original"`
	TitleTranslated *string             `json:"title_translated,omitempty"`
	TitleNormalized string              `json:"title_normalized"`
	Summary         string              `json:"summary"`
	SourceURL       string              `json:"source_url"`
	Categories      []string            `json:"categories"`
	Keywords        []string            `json:"keywords"`
	Entities        map[string][]string `json:"entities"`
	Language        string              `json:"language"`
	ScoreSource     float64             `json:"score_source"`
	ScoreFreshness  float64             `json:"score_freshness"`
	ScoreTrend      float64             `json:"score_trend"`
	ScoreRelevance  float64             `json:"score_relevance"`
	ScoreTotal      int                 `json:"score_total"`
	Status          TopicStatus         `json:"status"`
	PublishedAt     *time.Time          `json:"published_at,omitempty"`
	ExpiresAt       time.Time           `json:"expires_at"`
	ContentHash     string              `json:"content_hash"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// RawTopic is what a source adapter hands to the pipeline. It is never
// persisted directly.
type RawTopic struct {
	SourceName  string             `json:"source_name"`
	SourceID    string             `json:"source_id,omitempty"`
	SourceURL   string             `json:"source_url"`
	Title       string             `json:"title"`
	Content     *string            `json:"content,omitempty"`
	PublishedAt *time.Time         `json:"published_at,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	Metadata    map[string]string  `json:"metadata,omitempty"`
}

type NormalizedTopic struct {
	SourceName      string              `json:"source_name"`
	SourceURL       string              `json:"source_url"`
	TitleOriginal   string              `json:"title_original"`
	TitleTranslated *string             `json:"title_translated,omitempty"`
	TitleNormalized string              `json:"title_normalized"`
	Summary         string              `json:"summary"`
	Categories      []string            `json:"categories"`
	Keywords        []string            `json:"keywords"`
	Entities        map[string][]string `json:"entities,omitempty"`
	Language        string              `json:"language"`
	PublishedAt     *time.Time          `json:"published_at,omitempty"`
	Metrics         map[string]float64  `json:"metrics,omitempty"`
}

// Terms returns keywords followed by categories, lowercased and without
// repeats, in first-seen order.
func (n NormalizedTopic) Terms() []string {
	seen := make(map[string]struct{}, len(n.Keywords)+len(n.Categories))
	out := make([]string, 0, len(n.Keywords)+len(n.Categories))
	add := func(vs []string) {
		for _, v := range vs {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	add(n.Keywords)
	add(n.Categories)
	return out
}

type ScoredTopic struct {
	ScoreSource    float64 `json:"score_source"`
	ScoreFreshness float64 `json:"score_freshness"`
	ScoreTrend     float64 `json:"score_trend"`
	ScoreRelevance float64 `json:"score_relevance"`
	ScoreTotal     int     `json:"score_total"`
}

type TopicListResponse struct {
	Items []Topic `json:"items"`
	Total int     `json:"total"`
}

// Classification is the worker's view of a topic's subject matter.
type Classification struct {
	Categories []string            `json:"categories"`
	Keywords   []string            `json:"keywords"`
	Entities   map[string][]string `json:"entities"`
	Summary    string              `json:"summary"`
}
