package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/soyeahso/tagstream/internal/logging"
)

// Supported backends.
const (
	BackendGemini    = "gemini"
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
)

// Backends lists the accepted backend names.
var Backends = []string{BackendGemini, BackendOpenAI, BackendAnthropic}

// Factory builds a provider client bound to one credential secret.
type Factory func(ctx context.Context, secret string) (Client, error)

// FactoryFor returns the Factory for a backend name.
func FactoryFor(backend, baseURL string) (Factory, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case BackendGemini:
		return func(ctx context.Context, secret string) (Client, error) {
			return NewGeminiClient(ctx, secret, baseURL)
		}, nil
	case BackendOpenAI:
		return func(_ context.Context, secret string) (Client, error) {
			return NewOpenAIClient(secret, baseURL), nil
		}, nil
	case BackendAnthropic:
		return func(_ context.Context, secret string) (Client, error) {
			return NewClaudeAPIClient(secret, baseURL), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown provider backend %q", backend)
	}
}

// Registry hands out one client per credential, building each on first use.
type Registry struct {
	mu      sync.Mutex
	factory Factory
	clients map[string]Client // credential id → client
	log     *logging.Logger
}

// NewRegistry creates an empty registry backed by factory.
func NewRegistry(factory Factory, log *logging.Logger) *Registry {
	return &Registry{
		factory: factory,
		clients: make(map[string]Client),
		log:     log.Sub("llm.registry"),
	}
}

// Client returns the client for credentialID, creating it from secret if needed.
func (r *Registry) Client(ctx context.Context, credentialID, secret string) (Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[credentialID]; ok {
		return c, nil
	}
	c, err := r.factory(ctx, secret)
	if err != nil {
		return nil, fmt.Errorf("building client for credential %s: %w", credentialID, err)
	}
	r.clients[credentialID] = c
	r.log.Debug().Str("credential", credentialID).Str("provider", c.Name()).Msg("provider client created")
	return c, nil
}

// Len returns the number of cached clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
