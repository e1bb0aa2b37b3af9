package connector_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorstack/tutorstack/engine/internal/connector"
	"github.com/tutorstack/tutorstack/engine/internal/resolve"
	"github.com/tutorstack/tutorstack/engine/pkg/models"
)

func resolvedConfig(provider, key string) *models.ResolvedProviderConfig {
	return &models.ResolvedProviderConfig{
		Provider:       provider,
		Kind:           "openai",
		APIKey:         key,
		CredentialFP:   resolve.Fingerprint(key),
		Model:          "gpt-4o",
		ConnectTimeout: time.Second,
		RequestTimeout: 10 * time.Second,
		MaxConns:       8,
	}
}

func TestPool_ReusesClient(t *testing.T) {
	p := connector.NewClientPool()

	a := p.Get(resolvedConfig("openai", "sk-one"))
	b := p.Get(resolvedConfig("openai", "sk-one"))

	assert.Same(t, a, b)
	assert.EqualValues(t, 1, p.Created())
	assert.Equal(t, 1, p.Size())
}

func TestPool_NewClientPerCredential(t *testing.T) {
	p := connector.NewClientPool()

	a := p.Get(resolvedConfig("openai", "sk-one"))
	b := p.Get(resolvedConfig("openai", "sk-two"))

	assert.NotSame(t, a, b)
	assert.EqualValues(t, 2, p.Created())
}

func TestPool_ConcurrentFirstAccess(t *testing.T) {
	p := connector.NewClientPool()
	rc := resolvedConfig("openai", "sk-race")

	var wg sync.WaitGroup
	clients := make([]interface{}, 16)
	for i := 0; i < 16; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			clients[i] = p.Get(rc)
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, p.Created(), "racing goroutines must share one client")
	for i := 1; i < 16; i++ {
		assert.Same(t, clients[0], clients[i])
	}
}

func TestPool_BuildsOpenAIClient(t *testing.T) {
	p := connector.NewClientPool()

	c := p.Get(resolvedConfig("openai", "sk-one"))
	require.NotNil(t, c.HTTP)
	require.NotNil(t, c.OpenAI)
	assert.Equal(t, 10*time.Second, c.HTTP.Timeout)

	rc := resolvedConfig("claude", "sk-ant")
	rc.Kind = "anthropic"
	ac := p.Get(rc)
	require.NotNil(t, ac.HTTP)
	assert.Nil(t, ac.OpenAI)
}

func TestPool_Close(t *testing.T) {
	p := connector.NewClientPool()
	p.Get(resolvedConfig("openai", "sk-one"))
	p.Close()
	assert.Equal(t, 0, p.Size())
}
