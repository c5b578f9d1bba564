package collector

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bsforge/collector/internal/collector/sources"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTargetLanguage = "en"
	DefaultMaxTopics      = 20
)

// CollectionConfig is the input of one pipeline run for one channel.
type CollectionConfig struct {
	EnabledSources  []string                  `json:"enabled_sources"`
	TargetLanguage  string                    `json:"target_language"`
	MaxTopics       int                       `json:"max_topics"`
	SourceOverrides map[string]sources.Config `json:"source_overrides,omitempty"`
	Include         []string                  `json:"include,omitempty"`
	Exclude         []string                  `json:"exclude,omitempty"`
	TargetTerms     []string                  `json:"target_terms,omitempty"`
	SaveToDB        bool                      `json:"save_to_db"`
}

// Validate applies defaults and rejects documents that cannot drive a run.
func (c *CollectionConfig) Validate() error {
	var enabled []string
	for _, s := range c.EnabledSources {
		if s = strings.TrimSpace(s); s != "" {
			enabled = append(enabled, s)
		}
	}
	if len(enabled) == 0 {
		return &ConfigError{Field: "topic_collection.enabled_sources", Message: "at least one source is required"}
	}
	c.EnabledSources = enabled
	if strings.TrimSpace(c.TargetLanguage) == "" {
		c.TargetLanguage = DefaultTargetLanguage
	}
	c.TargetLanguage = strings.ToLower(strings.TrimSpace(c.TargetLanguage))
	if c.MaxTopics < 0 {
		return &ConfigError{Field: "topic_collection.max_topics", Message: "must not be negative"}
	}
	if c.MaxTopics == 0 {
		c.MaxTopics = DefaultMaxTopics
	}
	return nil
}

// Override returns the per-source block for name, or the zero Config.
func (c CollectionConfig) Override(name string) sources.Config {
	if c.SourceOverrides == nil {
		return sources.Config{}
	}
	return c.SourceOverrides[name]
}

type channelDocument struct {
	TopicCollection struct {
		EnabledSources  []string                  `yaml:"enabled_sources"`
		TargetLanguage  string                    `yaml:"target_language"`
		MaxTopics       int                       `yaml:"max_topics"`
		SourceOverrides map[string]sources.Config `yaml:"source_overrides"`
	} `yaml:"topic_collection"`
	Filtering struct {
		Include []string `yaml:"include"`
		Exclude []string `yaml:"exclude"`
	} `yaml:"filtering"`
	Scoring struct {
		TargetTerms []string `yaml:"target_terms"`
	} `yaml:"scoring"`
}

// ParseChannelConfig decodes a channel YAML document. Unknown keys are
// rejected. The returned config is validated; SaveToDB is left to the
// caller.
func ParseChannelConfig(data []byte) (CollectionConfig, error) {
	var doc channelDocument
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return CollectionConfig{}, &ConfigError{Message: fmt.Sprintf("decode channel yaml: %v", err), Err: err}
	}
	cfg := CollectionConfig{
		EnabledSources:  doc.TopicCollection.EnabledSources,
		TargetLanguage:  doc.TopicCollection.TargetLanguage,
		MaxTopics:       doc.TopicCollection.MaxTopics,
		SourceOverrides: doc.TopicCollection.SourceOverrides,
		Include:         doc.Filtering.Include,
		Exclude:         doc.Filtering.Exclude,
		TargetTerms:     doc.Scoring.TargetTerms,
	}
	if err := cfg.Validate(); err != nil {
		return CollectionConfig{}, err
	}
	return cfg, nil
}
