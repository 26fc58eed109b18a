package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/chatflow/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateChannel_RequiresBrokers(t *testing.T) {
	_, _, err := CreateChannel(watermill.NopLogger{}, nil, "chatflow")
	require.ErrorIs(t, err, ErrNoBrokers)

	_, _, err = CreateChannel(watermill.NopLogger{}, []string{""}, "chatflow")
	require.ErrorIs(t, err, ErrNoBrokers)
}

func TestPartitionKey(t *testing.T) {
	msg := message.NewMessage("1", []byte("{}"))
	msg.Metadata.Set(events.EventMetadataKey, "inst:5511")

	key, err := PartitionKey(events.Topic, msg)
	require.NoError(t, err)
	assert.Equal(t, "inst:5511", key)
}
