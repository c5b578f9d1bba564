package collector

import (
	"testing"

	"github.com/bsforge/collector/internal/model"
)

func TestFilter(t *testing.T) {
	topic := func(title string, keywords ...string) model.NormalizedTopic {
		return model.NormalizedTopic{TitleNormalized: title, Keywords: keywords, Categories: []string{"tech"}}
	}
	tests := []struct {
		name             string
		include, exclude []string
		topic            model.NormalizedTopic
		want             bool
	}{
		{"inactive passes everything", nil, nil, topic("anything"), true},
		{"include on title", []string{"Rust"}, nil, topic("rust 2.0 announced"), true},
		{"include on keyword", []string{"llm"}, nil, topic("new model", "llm"), true},
		{"include on category", []string{"tech"}, nil, topic("new model"), true},
		{"include miss", []string{"golang"}, nil, topic("python 4"), false},
		{"exclude only", nil, []string{"crypto"}, topic("crypto crash"), false},
		{"exclude only passes others", nil, []string{"crypto"}, topic("go release"), true},
		{"exclude wins", []string{"ai"}, []string{"crypto"}, topic("ai meets crypto"), false},
		{"blank terms ignored", []string{" "}, nil, topic("x"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewFilter(tt.include, tt.exclude).Pass(tt.topic); got != tt.want {
				t.Fatalf("Pass = %v, want %v", got, tt.want)
			}
		})
	}
}
