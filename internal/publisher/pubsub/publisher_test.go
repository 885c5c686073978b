package pubsub

import (
	"context"
	"testing"

	"cloud.google.com/go/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishRequiresClient(t *testing.T) {
	_, err := New(nil, "runs").Publish(context.Background(), "", map[string]int{"a": 1})
	assert.Error(t, err)
}

func TestPublishRequiresTopic(t *testing.T) {
	p := &Publisher{open: func(string) topicPublisher { return nil }}
	_, err := p.Publish(context.Background(), "", struct{}{})
	assert.ErrorContains(t, err, "topic is required")
}

func TestPublishRejectsUnmarshalablePayload(t *testing.T) {
	p := &Publisher{defaultTopic: "runs", open: func(string) topicPublisher { return nil }}
	_, err := p.Publish(context.Background(), "", make(chan int))
	assert.ErrorContains(t, err, "marshal payload")
}

func TestStopWithoutTopics(t *testing.T) {
	p := New((*pubsub.Client)(nil), "runs")
	require.NotPanics(t, p.Stop)
}
