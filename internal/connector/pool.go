// Package connector owns outbound provider traffic: pooled clients
// keyed by provider identity, per-kind drivers, and the single
// multimodal fallback retry.
package connector

import (
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/tutorstack/tutorstack/engine/pkg/contracts"
	"github.com/tutorstack/tutorstack/engine/pkg/models"
)

// ClientPool caches one PooledClient per (provider, credential, base
// URL) key. Clients are created lazily on first use and reused for the
// lifetime of the process; a changed credential produces a new key and
// therefore a new client, the old one ages out unused.
type ClientPool struct {
	mu      sync.RWMutex
	clients map[string]*contracts.PooledClient
	locks   map[string]*sync.Mutex
	created atomic.Int64
}

func NewClientPool() *ClientPool {
	return &ClientPool{
		clients: make(map[string]*contracts.PooledClient),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Get returns the pooled client for rc, creating it on first use. Two
// goroutines racing on the same key block on a per-key lock so exactly
// one client is built; different keys never contend during creation.
func (p *ClientPool) Get(rc *models.ResolvedProviderConfig) *contracts.PooledClient {
	key := rc.PoolKey()

	p.mu.RLock()
	c, ok := p.clients[key]
	p.mu.RUnlock()
	if ok {
		return c
	}

	p.mu.Lock()
	keyLock, ok := p.locks[key]
	if !ok {
		keyLock = &sync.Mutex{}
		p.locks[key] = keyLock
	}
	p.mu.Unlock()

	keyLock.Lock()
	defer keyLock.Unlock()

	p.mu.RLock()
	c, ok = p.clients[key]
	p.mu.RUnlock()
	if ok {
		return c
	}

	c = buildClient(rc)
	p.created.Add(1)
	log.Info().
		Str("provider", rc.Provider).
		Str("credential_fp", rc.CredentialFP).
		Str("kind", rc.Kind).
		Msg("Provider client created")

	p.mu.Lock()
	p.clients[key] = c
	p.mu.Unlock()
	return c
}

// Created reports how many clients this pool has built. Exposed for
// tests and health reporting.
func (p *ClientPool) Created() int64 { return p.created.Load() }

// Size reports the number of cached clients.
func (p *ClientPool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.clients)
}

// Close drops all cached clients and closes their idle connections.
func (p *ClientPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clients {
		if t, ok := c.HTTP.Transport.(*http.Transport); ok {
			t.CloseIdleConnections()
		}
	}
	p.clients = make(map[string]*contracts.PooledClient)
	p.locks = make(map[string]*sync.Mutex)
}

func buildClient(rc *models.ResolvedProviderConfig) *contracts.PooledClient {
	transport := &http.Transport{
		MaxConnsPerHost:     rc.MaxConns,
		MaxIdleConnsPerHost: rc.MaxConns,
		DialContext: (&net.Dialer{
			Timeout: rc.ConnectTimeout,
		}).DialContext,
	}
	httpClient := &http.Client{
		Transport: transport,
		Timeout:   rc.RequestTimeout,
	}

	c := &contracts.PooledClient{HTTP: httpClient}
	switch rc.Kind {
	case "openai", "openrouter", "ollama":
		cfg := openai.DefaultConfig(rc.APIKey)
		if rc.BaseURL != "" {
			cfg.BaseURL = rc.BaseURL
		}
		cfg.HTTPClient = httpClient
		c.OpenAI = openai.NewClientWithConfig(cfg)
	case "azure-openai":
		cfg := openai.DefaultAzureConfig(rc.APIKey, rc.BaseURL)
		cfg.HTTPClient = httpClient
		c.OpenAI = openai.NewClientWithConfig(cfg)
	}
	return c
}
