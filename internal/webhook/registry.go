// Package webhook exposes the raw-body HTTP endpoints the payment
// providers deliver events to. Verification always runs over the
// exact bytes received; nothing is parsed, logged as trusted, or
// persisted as verified before the signature passes.
package webhook

import (
	"context"
	"sort"

	"github.com/ledgerflow/paylink/internal/provider"
)

// Enricher recovers invoice context that a provider's webhook payload
// does not embed. Square payment events carry only an order id; the
// enricher resolves the order's checkout metadata before dispatch.
type Enricher interface {
	EnrichEvent(ctx context.Context, event *provider.Event) error
}

type endpoint struct {
	verifier provider.WebhookVerifier
	enricher Enricher
}

// Registry maps provider names to their webhook verifier and optional
// enricher. One endpoint is mounted per registered provider.
type Registry struct {
	endpoints map[string]endpoint
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{endpoints: make(map[string]endpoint)}
}

// Register adds a provider endpoint. enricher may be nil when the
// provider embeds all context in the event itself.
func (r *Registry) Register(verifier provider.WebhookVerifier, enricher Enricher) {
	r.endpoints[verifier.Name()] = endpoint{verifier: verifier, enricher: enricher}
}

// Providers returns the registered provider names, sorted for stable
// route setup
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) lookup(name string) (endpoint, bool) {
	ep, ok := r.endpoints[name]
	return ep, ok
}
