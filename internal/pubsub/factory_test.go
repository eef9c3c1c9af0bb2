package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagemend/pagemend/internal/config"
)

func TestNewPubSub(t *testing.T) {
	t.Run("creates local pubsub when redis is disabled", func(t *testing.T) {
		ps, err := NewPubSub(config.RedisConfig{Enabled: false}, 0)
		require.NoError(t, err)
		require.NotNil(t, ps)
		defer ps.Close()

		_, ok := ps.(*LocalPubSub)
		assert.True(t, ok, "should be LocalPubSub")
	})

	t.Run("requires url when redis is enabled", func(t *testing.T) {
		ps, err := NewPubSub(config.RedisConfig{Enabled: true}, 0)
		require.Error(t, err)
		assert.Nil(t, ps)
		assert.Contains(t, err.Error(), "redis.url")
	})

	t.Run("rejects malformed redis url", func(t *testing.T) {
		ps, err := NewPubSub(config.RedisConfig{Enabled: true, URL: "not-a-url"}, 0)
		require.Error(t, err)
		assert.Nil(t, ps)
	})
}

func TestJobChannel(t *testing.T) {
	assert.Equal(t, "pagemend:job:abc", JobChannel("abc"))
}
