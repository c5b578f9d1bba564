package service

import (
	"context"

	"github.com/inngest/inngestgo"
	"github.com/rs/zerolog"
)

const (
	EventTopicsCollected  = "topics/collected"
	EventCollectRequested = "channel/collect.requested"
)

type EventPublisher struct {
	client inngestgo.Client
	log    zerolog.Logger
}

func NewEventPublisher(client inngestgo.Client, log zerolog.Logger) *EventPublisher {
	return &EventPublisher{client: client, log: log}
}

// SendTopicsCollected tells the script stage which topics a run saved.
func (p *EventPublisher) SendTopicsCollected(ctx context.Context, channelID string, topicIDs []string) error {
	if p == nil {
		return nil
	}
	if _, err := p.client.Send(ctx, inngestgo.Event{
		Name: EventTopicsCollected,
		Data: map[string]any{
			"channel_id": channelID,
			"topic_ids":  topicIDs,
		},
	}); err != nil {
		p.log.Warn().Err(err).Str("channel_id", channelID).Msg("send topics/collected")
		return err
	}
	return nil
}

func (p *EventPublisher) SendCollectRequested(ctx context.Context, channelID string) error {
	if p == nil {
		return nil
	}
	if _, err := p.client.Send(ctx, inngestgo.Event{
		Name: EventCollectRequested,
		Data: map[string]any{"channel_id": channelID},
	}); err != nil {
		p.log.Warn().Err(err).Str("channel_id", channelID).Msg("send channel/collect.requested")
		return err
	}
	return nil
}
