// Package instrument provides the symbol-to-contract-metadata registry
// (spec.md §2 InstrumentRegistry, §3 Instrument). The registry is loaded at
// startup and refreshed only on session boundaries; it is read-only during a
// session, matching the "no locks in the core" partitioning of spec.md §5 —
// the RWMutex here guards only the startup/refresh race, not steady-state reads.
package instrument

import (
	"fmt"
	"sync"

	"github.com/atlas-desktop/futures-core/pkg/types"
	"go.uber.org/zap"
)

// Registry maps symbol to Instrument metadata.
type Registry struct {
	logger *zap.Logger
	mu     sync.RWMutex
	byCode map[string]types.Instrument
}

// New creates an empty Registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		logger: logger.Named("instrument-registry"),
		byCode: make(map[string]types.Instrument),
	}
}

// Load replaces the registry contents, validating every instrument first.
// Intended for startup and for session-boundary refresh (spec.md §3 Lifecycle).
func (r *Registry) Load(instruments []types.Instrument) error {
	next := make(map[string]types.Instrument, len(instruments))
	for _, inst := range instruments {
		if err := inst.Validate(); err != nil {
			return fmt.Errorf("instrument %s: %w", inst.Symbol, err)
		}
		next[inst.Symbol] = inst
	}

	r.mu.Lock()
	r.byCode = next
	r.mu.Unlock()

	r.logger.Info("instrument registry loaded", zap.Int("count", len(next)))
	return nil
}

// Get returns the instrument for symbol.
func (r *Registry) Get(symbol string) (types.Instrument, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.byCode[symbol]
	return inst, ok
}

// MustGet returns the instrument for symbol, panicking if absent. Reserved
// for call sites that have already validated the symbol exists (e.g. after
// a successful Get in the same tick); never call this on untrusted input.
func (r *Registry) MustGet(symbol string) types.Instrument {
	inst, ok := r.Get(symbol)
	if !ok {
		panic(fmt.Sprintf("instrument: unknown symbol %q", symbol))
	}
	return inst
}

// Symbols returns all registered symbols.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byCode))
	for s := range r.byCode {
		out = append(out, s)
	}
	return out
}

// Len returns the number of registered instruments.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCode)
}
