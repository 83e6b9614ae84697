package gateway

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"event-portal/internal/status"
	"event-portal/models"

	"go.uber.org/zap"
)

// DefaultFactory builds the two supported integrations.
type DefaultFactory struct{}

func NewFactory() *DefaultFactory {
	return &DefaultFactory{}
}

// Create creates a gateway based on provider tag and configuration
func (f *DefaultFactory) Create(provider models.Gateway, config any) (Gateway, error) {
	switch provider {
	case models.GatewayCashfree:
		cfg, ok := config.(*EmbeddedConfig)
		if !ok {
			return nil, fmt.Errorf("invalid %s config type, expected *gateway.EmbeddedConfig", provider)
		}
		return NewEmbeddedCheckout(cfg)

	case models.GatewayPayU:
		cfg, ok := config.(*RedirectConfig)
		if !ok {
			return nil, fmt.Errorf("invalid %s config type, expected *gateway.RedirectConfig", provider)
		}
		return NewRedirectForm(cfg), nil

	default:
		return nil, fmt.Errorf("%w: %s", status.ErrUnsupportedGateway, provider)
	}
}

func (f *DefaultFactory) SupportedProviders() []models.Gateway {
	return []models.Gateway{
		models.GatewayCashfree,
		models.GatewayPayU,
	}
}

// Registry maps gateway tags to live integrations.
type Registry struct {
	mu       sync.RWMutex
	gateways map[models.Gateway]Gateway
	factory  Factory
	logger   *zap.Logger
}

func NewRegistry(factory Factory, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		gateways: make(map[models.Gateway]Gateway),
		factory:  factory,
		logger:   logger,
	}
}

// Register creates a gateway through the factory and registers it
func (r *Registry) Register(provider models.Gateway, config any) error {
	g, err := r.factory.Create(provider, config)
	if err != nil {
		return fmt.Errorf("failed to create %s gateway: %w", provider, err)
	}
	r.Add(g)
	return nil
}

// Add registers an already built gateway under its own provider tag.
func (r *Registry) Add(g Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[g.Provider()] = g
}

func (r *Registry) Get(provider models.Gateway) (Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, exists := r.gateways[provider]
	if !exists {
		return nil, fmt.Errorf("%w: %q is not registered", status.ErrUnsupportedGateway, provider)
	}
	return g, nil
}

func (r *Registry) Providers() []models.Gateway {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]models.Gateway, 0, len(r.gateways))
	for provider := range r.gateways {
		providers = append(providers, provider)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })
	return providers
}

// Close closes every registered gateway, logging failures and carrying on.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for provider, g := range r.gateways {
		if err := g.Close(ctx); err != nil {
			r.logger.Error("close gateway", zap.String("gateway", string(provider)), zap.Error(err))
		}
	}
	return nil
}
