package queue

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// PubSubProvider publishes payloads to a Google Cloud Pub/Sub topic.
type PubSubProvider struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubProvider dials projectID and binds to an existing topicID.
func NewPubSubProvider(ctx context.Context, projectID, topicID string) (*PubSubProvider, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	return &PubSubProvider{client: client, topic: client.Topic(topicID)}, nil
}

// Publish sends payload as the data of a single message and waits for the
// broker to acknowledge it.
func (p *PubSubProvider) Publish(ctx context.Context, payload []byte) error {
	result := p.topic.Publish(ctx, &pubsub.Message{Data: payload})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publishing message: %w", err)
	}
	return nil
}

// Close stops the topic's publish scheduler and closes the client.
func (p *PubSubProvider) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
