package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"eventhub/internal/cache"
	"eventhub/internal/logger"
)

func TestKeyIsDeterministic(t *testing.T) {
	a := cache.Key("events:list", map[string]string{
		"search": "go",
		"page":   "1",
		"limit":  "10",
	})
	b := cache.Key("events:list", map[string]string{
		"limit":  "10",
		"page":   "1",
		"search": "go",
	})

	assert.Equal(t, a, b, "same params in different order must build the same key")
	assert.Equal(t, "events:list:limit:10:page:1:search:go", a)
}

func TestKeyWithoutParams(t *testing.T) {
	assert.Equal(t, "health", cache.Key("health", nil))
}

func TestKeyEscapesSeparatorInValues(t *testing.T) {
	// A value containing the separator must not read as extra parameters.
	tricky := cache.Key("events:list", map[string]string{"search": "go:page:2"})
	split := cache.Key("events:list", map[string]string{"search": "go", "page": "2"})

	assert.NotEqual(t, tricky, split)
	assert.Equal(t, "events:list:search:go%3Apage%3A2", tricky)
	assert.Equal(t, "events:list:search:go%25", cache.Key("events:list", map[string]string{"search": "go%"}))
}

func TestNoopCache(t *testing.T) {
	c := cache.NewNoop()
	ctx := context.Background()

	c.Set(ctx, "k", map[string]string{"a": "b"}, time.Minute)

	var dest map[string]string
	assert.False(t, c.Get(ctx, "k", &dest), "noop cache never returns hits")
}

func TestNewFallsBackToNoop(t *testing.T) {
	log := logger.NewLogger()
	defer log.Close()

	c := cache.New("", log)
	_, ok := c.(*cache.NoopCache)
	assert.True(t, ok, "empty address must select the noop cache")
}

// TestRedisCacheIntegration exercises Get/Set/InvalidatePattern against a
// real Redis container.
func TestRedisCacheIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}

	ctx := context.Background()
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:latest",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	defer redisContainer.Terminate(ctx)

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	log := logger.NewLogger()
	defer log.Close()

	c := cache.New(host+":"+port.Port(), log)
	_, ok := c.(*cache.RedisCache)
	require.True(t, ok, "reachable address must select the redis cache")

	type view struct {
		Title string `json:"title"`
		Total int    `json:"total"`
	}

	detailKey := cache.Key("event:details", map[string]string{"eventId": "e1", "userId": "u1"})
	listKey := cache.Key("events:list", map[string]string{"page": "1"})

	c.Set(ctx, detailKey, view{Title: "Park Cleanup", Total: 3}, time.Minute)
	c.Set(ctx, listKey, view{Title: "listing", Total: 10}, time.Minute)

	var got view
	require.True(t, c.Get(ctx, detailKey, &got))
	assert.Equal(t, "Park Cleanup", got.Title)
	assert.Equal(t, 3, got.Total)

	// Invalidate only the detail namespace; the listing entry must survive.
	c.InvalidatePattern(ctx, "event:details:eventId:e1:*")

	assert.False(t, c.Get(ctx, detailKey, &got), "invalidated entry must miss")
	assert.True(t, c.Get(ctx, listKey, &got), "unrelated entry must survive invalidation")
}
