package provider

import (
	"fmt"
	"sync"

	"github.com/osezele-agbi/paygate/internal/domain"
)

type Config struct {
	Default  domain.ProviderType
	Stripe   StripeConfig
	Razorpay RazorpayConfig
	Cashfree CashfreeConfig
}

// New constructs a provider adapter without caching. The webhook path uses
// this to dispatch on the provider named in the URL rather than the
// configured default.
func New(typ domain.ProviderType, cfg Config) (Provider, error) {
	switch typ {
	case domain.ProviderStripe:
		return NewStripe(cfg.Stripe)
	case domain.ProviderRazorpay:
		return NewRazorpay(cfg.Razorpay)
	case domain.ProviderCashfree:
		return NewCashfree(cfg.Cashfree)
	default:
		return nil, fmt.Errorf("New: %w %q (valid: %s, %s, %s)",
			domain.ErrUnknownProvider, typ,
			domain.ProviderStripe, domain.ProviderRazorpay, domain.ProviderCashfree)
	}
}

// Registry holds constructed adapters. It is built once at process start and
// injected where needed; there is no package-level singleton, so credentials
// are fixed for the life of the process by construction rather than by a
// hidden cache.
type Registry struct {
	cfg       Config
	defaultP  Provider
	mu        sync.Mutex
	instances map[domain.ProviderType]Provider
}

func NewRegistry(cfg Config) (*Registry, error) {
	// Construct the default eagerly so credential problems fail at startup.
	defaultP, err := New(cfg.Default, cfg)
	if err != nil {
		return nil, fmt.Errorf("NewRegistry: %w", err)
	}
	return &Registry{
		cfg:       cfg,
		defaultP:  defaultP,
		instances: map[domain.ProviderType]Provider{cfg.Default: defaultP},
	}, nil
}

// Default returns the adapter selected by configuration.
func (r *Registry) Default() Provider {
	return r.defaultP
}

// ForName resolves an adapter by provider name, constructing it on first use.
func (r *Registry) ForName(name string) (Provider, error) {
	typ := domain.ProviderType(name)
	if !typ.IsValid() {
		return nil, fmt.Errorf("ForName: %w %q (valid: %s, %s, %s)",
			domain.ErrUnknownProvider, name,
			domain.ProviderStripe, domain.ProviderRazorpay, domain.ProviderCashfree)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.instances[typ]; ok {
		return p, nil
	}
	p, err := New(typ, r.cfg)
	if err != nil {
		return nil, fmt.Errorf("ForName: %w", err)
	}
	r.instances[typ] = p
	return p, nil
}
