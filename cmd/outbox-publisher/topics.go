package main

import (
	"context"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

// topicSource hands out one publisher per topic.
type topicSource interface {
	Ping(context.Context) error
	Publisher(topic string) publisher
}

// publisher sends one message and waits for the server ack.
type publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) (string, error)
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

// orderedTopics caches ordered Pub/Sub publishers. A client publisher owns
// background goroutines, so handles are built once per topic and stopped on
// Close.
type orderedTopics struct {
	client pubSubClient

	mu         sync.Mutex
	publishers map[string]*orderedPublisher
}

func newOrderedTopics(client pubSubClient) *orderedTopics {
	return &orderedTopics{client: client, publishers: make(map[string]*orderedPublisher)}
}

func (t *orderedTopics) Ping(ctx context.Context) error {
	return t.client.Ping(ctx)
}

func (t *orderedTopics) Publisher(topic string) publisher {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pub, ok := t.publishers[topic]; ok {
		return pub
	}
	raw := t.client.Publisher(topic)
	if raw == nil {
		return nil
	}
	raw.EnableMessageOrdering = true
	pub := &orderedPublisher{raw: raw}
	t.publishers[topic] = pub
	return pub
}

// Close flushes and stops every publisher handed out.
func (t *orderedTopics) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for topic, pub := range t.publishers {
		pub.raw.Stop()
		delete(t.publishers, topic)
	}
}

type orderedPublisher struct {
	raw *gcppubsub.Publisher
}

// Publish blocks until the message is acked. A failed ordered publish pauses
// its key, so the key is resumed to let the retry through on a later batch.
func (p *orderedPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) (string, error) {
	id, err := p.raw.Publish(ctx, msg).Get(ctx)
	if err != nil && msg.OrderingKey != "" {
		p.raw.ResumePublish(msg.OrderingKey)
	}
	return id, err
}
