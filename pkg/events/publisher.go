package events

import (
	"encoding/json"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/railwatch/railwatch/pkg/redis_client"
	"github.com/railwatch/railwatch/pkg/ride"
	"github.com/rs/zerolog/log"
)

// Publisher pushes ride lifecycle events onto the events queue. A nil
// Publisher is valid and drops everything, so callers don't need to care
// whether the queue is wired up.
type Publisher struct {
	Queue rmq.Queue
}

func NewPublisher(queueName string) (*Publisher, error) {
	queue, err := redis_client.QueueConnection.OpenQueue(queueName)
	if err != nil {
		return nil, err
	}

	return &Publisher{Queue: queue}, nil
}

func (p *Publisher) Publish(eventType ride.EventType, body interface{}) {
	if p == nil {
		return
	}

	eventBytes, err := json.Marshal(ride.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Body:      body,
	})
	if err != nil {
		log.Error().Err(err).Str("type", string(eventType)).Msg("Failed to marshal event")
		return
	}

	if err := p.Queue.PublishBytes(eventBytes); err != nil {
		log.Error().Err(err).Str("type", string(eventType)).Msg("Failed to publish event")
	}
}
