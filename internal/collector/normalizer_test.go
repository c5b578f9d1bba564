package collector

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bsforge/collector/internal/model"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

type stubTranslator struct {
	out   string
	err   error
	calls int
}

func (s *stubTranslator) Translate(_ context.Context, text, from, to string) (string, error) {
	s.calls++
	return s.out, s.err
}

type stubClassifier struct {
	out *model.Classification
	err error
}

func (s stubClassifier) Classify(context.Context, string, *string) (*model.Classification, error) {
	return s.out, s.err
}

func TestCleanTitle(t *testing.T) {
	tests := map[string]string{
		"Show HN: My   Tiny DB":                 "my tiny db",
		"  Ask HN:What do you use?  ":           "what do you use?",
		"Read this https://example.com/x today": "read this today",
		"Go 1.24":                               "go 1.24",
	}
	for in, want := range tests {
		if got := CleanTitle(in); got != want {
			t.Fatalf("CleanTitle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := map[string]string{
		"Hello world":   "en",
		"안녕하세요 세계":      "ko",
		"こんにちは世界":       "ja",
		"你好世界":          "zh",
		"Go 언어 1.24 출시": "ko",
	}
	for in, want := range tests {
		if got := DetectLanguage(in); got != want {
			t.Fatalf("DetectLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtractKeywords(t *testing.T) {
	got := ExtractKeywords("The Rust compiler and the Go compiler: why Rust wins")
	want := []string{"rust", "compiler", "wins"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("keywords mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeLocalFallback(t *testing.T) {
	n := NewNormalizer(nil, nil, zerolog.Nop())
	content := strings.Repeat("x", 300)
	got, err := n.Normalize(context.Background(), model.RawTopic{
		SourceName: "hackernews",
		SourceURL:  "https://e/1",
		Title:      "  Show HN: Postgres Extensions Catalog ",
		Content:    &content,
	}, "")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got.TitleOriginal != "Show HN: Postgres Extensions Catalog" {
		t.Fatalf("title_original = %q", got.TitleOriginal)
	}
	if got.TitleNormalized != "postgres extensions catalog" {
		t.Fatalf("title_normalized = %q", got.TitleNormalized)
	}
	if got.TitleTranslated != nil || got.Language != "en" {
		t.Fatalf("translated=%v lang=%q", got.TitleTranslated, got.Language)
	}
	if diff := cmp.Diff([]string{"general"}, got.Categories); diff != "" {
		t.Fatalf("categories mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"postgres", "extensions", "catalog"}, got.Keywords); diff != "" {
		t.Fatalf("keywords mismatch (-want +got):\n%s", diff)
	}
	if len([]rune(got.Summary)) != 200 {
		t.Fatalf("summary length = %d, want 200", len([]rune(got.Summary)))
	}
}

func TestNormalizeEmptyTitle(t *testing.T) {
	n := NewNormalizer(nil, nil, zerolog.Nop())
	_, err := n.Normalize(context.Background(), model.RawTopic{Title: "   "}, "en")
	if !errors.Is(err, ErrEmptyTitle) {
		t.Fatalf("err = %v, want ErrEmptyTitle", err)
	}
}

func TestNormalizeTranslation(t *testing.T) {
	t.Run("translated when languages differ", func(t *testing.T) {
		tr := &stubTranslator{out: " Go 1.24 released "}
		n := NewNormalizer(tr, nil, zerolog.Nop())
		got, err := n.Normalize(context.Background(), model.RawTopic{Title: "Go 1.24 출시"}, "en")
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		if got.TitleTranslated == nil || *got.TitleTranslated != "Go 1.24 released" {
			t.Fatalf("title_translated = %v", got.TitleTranslated)
		}
		if got.Language != "ko" {
			t.Fatalf("language = %q", got.Language)
		}
	})
	t.Run("skipped when already in target", func(t *testing.T) {
		tr := &stubTranslator{out: "unused"}
		n := NewNormalizer(tr, nil, zerolog.Nop())
		if _, err := n.Normalize(context.Background(), model.RawTopic{Title: "Hello"}, "en"); err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		if tr.calls != 0 {
			t.Fatalf("translator called %d times", tr.calls)
		}
	})
	t.Run("failure keeps original", func(t *testing.T) {
		tr := &stubTranslator{err: errors.New("worker down")}
		n := NewNormalizer(tr, nil, zerolog.Nop())
		got, err := n.Normalize(context.Background(), model.RawTopic{Title: "Go 1.24 출시"}, "en")
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		if got.TitleTranslated != nil {
			t.Fatalf("title_translated = %q, want nil", *got.TitleTranslated)
		}
	})
}

func TestNormalizeClassifier(t *testing.T) {
	t.Run("result is lowercased with defaults", func(t *testing.T) {
		c := stubClassifier{out: &model.Classification{Keywords: []string{"PostgreSQL", " Indexes "}}}
		n := NewNormalizer(nil, c, zerolog.Nop())
		got, err := n.Normalize(context.Background(), model.RawTopic{Title: "Faster indexes"}, "en")
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		want := model.NormalizedTopic{
			TitleOriginal:   "Faster indexes",
			TitleNormalized: "faster indexes",
			Summary:         "Faster indexes",
			Categories:      []string{"general"},
			Keywords:        []string{"postgresql", "indexes"},
			Entities:        map[string][]string{},
			Language:        "en",
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("normalized mismatch (-want +got):\n%s", diff)
		}
	})
	t.Run("failure falls back to local terms", func(t *testing.T) {
		c := stubClassifier{err: errors.New("502")}
		n := NewNormalizer(nil, c, zerolog.Nop())
		got, err := n.Normalize(context.Background(), model.RawTopic{Title: "Kubernetes operators explained"}, "en")
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		if diff := cmp.Diff([]string{"kubernetes", "operators", "explained"}, got.Keywords); diff != "" {
			t.Fatalf("keywords mismatch (-want +got):\n%s", diff)
		}
	})
}
