package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/layer-3/walletauth/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subscribe(t *testing.T, pubsub *gochannel.GoChannel, topic string) <-chan *message.Message {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ch, err := pubsub.Subscribe(ctx, topic)
	require.NoError(t, err)
	return ch
}

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		msg.Ack()
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestWatermillPublisher_Events(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubsub.Close() })

	topics := DefaultTopics("walletauth")
	logins := subscribe(t, pubsub, topics.Login)
	failures := subscribe(t, pubsub, topics.LoginFailed)
	logouts := subscribe(t, pubsub, topics.Logout)

	p := NewWatermillPublisher(pubsub, topics)
	ctx := context.Background()
	addr := "0x1111111111111111111111111111111111111111"

	require.NoError(t, p.PublishLogin(ctx, addr, "session-1"))
	msg := receive(t, logins)
	assert.Equal(t, "session-1", msg.UUID)
	var login LoginEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &login))
	assert.Equal(t, addr, login.Address)

	require.NoError(t, p.PublishLoginFailure(ctx, addr, core.ReasonNonceExpired))
	var failed LoginFailedEvent
	require.NoError(t, json.Unmarshal(receive(t, failures).Payload, &failed))
	assert.Equal(t, core.ReasonNonceExpired, failed.Reason)

	require.NoError(t, p.PublishLogout(ctx, addr, "refresh-1"))
	var logout LogoutEvent
	require.NoError(t, json.Unmarshal(receive(t, logouts).Payload, &logout))
	assert.Equal(t, "refresh-1", logout.TokenID)
}

type failingPublisher struct{}

func (failingPublisher) Publish(string, ...*message.Message) error { return errors.New("broker down") }
func (failingPublisher) Close() error                              { return nil }

func TestWatermillPublisher_PublishError(t *testing.T) {
	p := NewWatermillPublisher(failingPublisher{}, DefaultTopics("walletauth"))
	err := p.PublishLogout(context.Background(), "0x1", "t")
	assert.ErrorContains(t, err, "broker down")
}
