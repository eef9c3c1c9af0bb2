package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLocalPubSub(t *testing.T) {
	ps := NewLocalPubSub(0)
	require.NotNil(t, ps)
	assert.Empty(t, ps.subs)
	assert.Equal(t, defaultSubscriberBuffer, ps.buffer)

	err := ps.Close()
	require.NoError(t, err)
}

func TestLocalPubSub_PublishSubscribe(t *testing.T) {
	ps := NewLocalPubSub(0)
	defer ps.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msgCh, err := ps.Subscribe(ctx, JobChannel("job-1"))
	require.NoError(t, err)
	require.NotNil(t, msgCh)

	payload := []byte(`{"stage":"extracting","page_index":0}`)
	err = ps.Publish(ctx, JobChannel("job-1"), payload)
	require.NoError(t, err)

	select {
	case msg := <-msgCh:
		assert.Equal(t, "pagemend:job:job-1", msg.Channel)
		assert.Equal(t, payload, msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestLocalPubSub_MultipleSubscribers(t *testing.T) {
	ps := NewLocalPubSub(0)
	defer ps.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub1, err := ps.Subscribe(ctx, "progress")
	require.NoError(t, err)
	sub2, err := ps.Subscribe(ctx, "progress")
	require.NoError(t, err)

	payload := []byte("event")
	err = ps.Publish(ctx, "progress", payload)
	require.NoError(t, err)

	for i, sub := range []<-chan Message{sub1, sub2} {
		select {
		case msg := <-sub:
			assert.Equal(t, payload, msg.Payload, "subscriber %d", i)
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d timed out", i)
		}
	}
}

func TestLocalPubSub_ChannelIsolation(t *testing.T) {
	ps := NewLocalPubSub(0)
	defer ps.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, err := ps.Subscribe(ctx, JobChannel("a"))
	require.NoError(t, err)
	b, err := ps.Subscribe(ctx, JobChannel("b"))
	require.NoError(t, err)

	err = ps.Publish(ctx, JobChannel("a"), []byte("for a"))
	require.NoError(t, err)

	select {
	case msg := <-a:
		assert.Equal(t, []byte("for a"), msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message on channel a")
	}

	select {
	case msg := <-b:
		t.Fatalf("channel b received unexpected message: %s", msg.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLocalPubSub_UnsubscribeOnContextCancel(t *testing.T) {
	ps := NewLocalPubSub(0)
	defer ps.Close()

	ctx, cancel := context.WithCancel(context.Background())
	msgCh, err := ps.Subscribe(ctx, "progress")
	require.NoError(t, err)

	cancel()

	// The subscriber channel closes once the cancellation is observed.
	select {
	case _, open := <-msgCh:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscriber channel to close")
	}
}

func TestLocalPubSub_CloseClosesSubscribers(t *testing.T) {
	ps := NewLocalPubSub(0)

	ctx := context.Background()
	msgCh, err := ps.Subscribe(ctx, "progress")
	require.NoError(t, err)

	require.NoError(t, ps.Close())

	_, open := <-msgCh
	assert.False(t, open)
}

func TestLocalPubSub_BoundedSubscriberBuffer(t *testing.T) {
	ps := NewLocalPubSub(2)
	defer ps.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msgCh, err := ps.Subscribe(ctx, "progress")
	require.NoError(t, err)

	for _, payload := range []string{"a", "b", "c"} {
		require.NoError(t, ps.Publish(ctx, "progress", []byte(payload)))
	}

	// Only the first two fit the queue; the third is dropped.
	assert.Equal(t, []byte("a"), (<-msgCh).Payload)
	assert.Equal(t, []byte("b"), (<-msgCh).Payload)
	select {
	case msg := <-msgCh:
		t.Fatalf("unexpected message: %s", msg.Payload)
	default:
	}
}
