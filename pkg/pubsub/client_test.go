package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stockledger-backend/pkg/config"
)

func TestTopicName(t *testing.T) {
	assert.Equal(t, "projects/p1/topics/ledger-events", TopicName("p1", " ledger-events "))
	assert.Equal(t, "projects/other/topics/t", TopicName("p1", "projects/other/topics/t"))
	assert.Empty(t, TopicName("", "ledger-events"))
	assert.Empty(t, TopicName("p1", ""))
}

func TestSubscriptionName(t *testing.T) {
	assert.Equal(t, "projects/p1/subscriptions/ledger-events-analytics", SubscriptionName("p1", "ledger-events-analytics"))
	assert.Equal(t, "projects/x/subscriptions/s", SubscriptionName("p1", "projects/x/subscriptions/s"))
	assert.Empty(t, SubscriptionName("", "s"))
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{LedgerTopic: "t"}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)

	_, err = NewClient(context.Background(), config.GCPConfig{ProjectID: "p1"}, config.PubSubConfig{}, nil)
	require.ErrorIs(t, err, errTopicRequired)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("t"))
	assert.Nil(t, c.AnalyticsSubscriber())
	assert.NoError(t, c.Close())
	assert.Error(t, c.Ping(context.Background()))
}
