// Package providers holds the closed set of upstream data-source adapters
// (C5). Each adapter is a side-effect-free value bundling a request
// builder, a response normalizer, and the rate-limit header names it
// knows how to interpret. Symbol translation to a provider-specific
// vocabulary happens only inside the builder.
package providers

import (
	"github.com/guglxni/quotefusion/internal/ledger"
	"github.com/guglxni/quotefusion/internal/model"
	"github.com/guglxni/quotefusion/internal/transport"
)

// Adapter is the interface every upstream provider implements. Adapters own
// no state: Identity is a constant, and BuildRequest/Normalize are pure
// functions of their arguments.
type Adapter interface {
	Identity() model.Provider

	// BuildRequest constructs the HTTP call for the given data class and
	// canonical (already-uppercased) symbol. Symbol is ignored for
	// DataClassGlobalMarket.
	BuildRequest(class model.DataClass, symbol string) (transport.Request, error)

	// Normalize turns a successful transport.Response into a RawRecord,
	// plus whatever rate-limit ledger.Observation it could extract from
	// the response headers (possibly empty).
	Normalize(class model.DataClass, symbol string, resp *transport.Response) (model.RawRecord, ledger.Observation, error)
}

// Registry is the fixed, ordered set of adapters the fetch orchestrator
// dispatches against. Unlike a plugin registry, membership is a compile-time
// decision: adding a provider means writing an Adapter and appending it
// here.
type Registry struct {
	byProvider map[model.Provider]Adapter
	order      []model.Provider
}

// NewRegistry builds a Registry from adapters in the given priority order.
// The order is the default candidate order before C6's health-score
// reordering is applied.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{byProvider: make(map[model.Provider]Adapter, len(adapters))}
	for _, a := range adapters {
		r.byProvider[a.Identity()] = a
		r.order = append(r.order, a.Identity())
	}
	return r
}

func (r *Registry) Get(p model.Provider) (Adapter, bool) {
	a, ok := r.byProvider[p]
	return a, ok
}

// Providers returns the registry's providers in their default order.
func (r *Registry) Providers() []model.Provider {
	out := make([]model.Provider, len(r.order))
	copy(out, r.order)
	return out
}
