package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bsforge/collector/internal/collector"
	"github.com/bsforge/collector/internal/model"
	"github.com/rs/zerolog"
)

type staticChannels []model.Channel

func (s staticChannels) ListEnabled(context.Context) ([]model.Channel, error) { return s, nil }

type recordingCollector struct {
	configs map[string]collector.CollectionConfig
	fail    map[string]error
}

func (r *recordingCollector) CollectForChannel(_ context.Context, ch model.Channel, cfg collector.CollectionConfig) ([]model.Topic, *collector.CollectionStats, error) {
	if r.configs == nil {
		r.configs = map[string]collector.CollectionConfig{}
	}
	r.configs[ch.ID] = cfg
	if err := r.fail[ch.ID]; err != nil {
		return nil, &collector.CollectionStats{}, err
	}
	return []model.Topic{{ID: ch.ID + "-t1"}}, &collector.CollectionStats{SavedCount: 1}, nil
}

const validDoc = "topic_collection:\n  enabled_sources: [hackernews]\n"

func TestRunChannelDryRun(t *testing.T) {
	rc := &recordingCollector{}
	svc := NewCollectService(staticChannels{}, rc, zerolog.Nop())

	ch := model.Channel{ID: "c1", Name: "tech", ConfigYAML: validDoc}
	if _, _, err := svc.RunChannel(context.Background(), ch, true); err != nil {
		t.Fatalf("RunChannel: %v", err)
	}
	if rc.configs["c1"].SaveToDB {
		t.Fatalf("dry run requested persistence")
	}
	if _, _, err := svc.RunChannel(context.Background(), ch, false); err != nil {
		t.Fatalf("RunChannel: %v", err)
	}
	if !rc.configs["c1"].SaveToDB {
		t.Fatalf("real run did not request persistence")
	}
}

func TestRunChannelRejectsBadDocument(t *testing.T) {
	svc := NewCollectService(staticChannels{}, &recordingCollector{}, zerolog.Nop())
	_, _, err := svc.RunChannel(context.Background(), model.Channel{ID: "c1", ConfigYAML: "topic_collection: {}"}, false)
	var cerr *collector.ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want *collector.ConfigError", err)
	}
}

func TestRunAllContinuesPastFailures(t *testing.T) {
	rc := &recordingCollector{fail: map[string]error{"c2": errors.New("save topics: boom")}}
	channels := staticChannels{
		{ID: "c1", Name: "a", ConfigYAML: validDoc},
		{ID: "c2", Name: "b", ConfigYAML: validDoc},
		{ID: "c3", Name: "c", ConfigYAML: validDoc},
	}
	res, err := NewCollectService(channels, rc, zerolog.Nop()).RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if res.Channels != 3 || res.Saved != 2 || res.Failed != 1 {
		t.Fatalf("result = %+v", res)
	}
	if res.Results[1].Error == "" {
		t.Fatalf("failed channel has no error recorded")
	}
}
