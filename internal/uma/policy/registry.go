package policy

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/ticketgate/internal/observability/logger"
)

// Loader produce el set completo de policies cargadas, keyed por referencia
// estable. Lo implementa el host de scripts (external concern).
type Loader func(ctx context.Context) (map[string]Policy, error)

// Registry es el cache process-wide de policies cargadas. Reload reemplaza
// el map entero (copy-on-write) para que los readers nunca observen un
// rebuild a medias; singleflight colapsa reloads concurrentes.
type Registry struct {
	current atomic.Value // map[string]Policy
	loader  Loader

	mu sync.Mutex // serializa el swap
	sf singleflight.Group
}

func NewRegistry(loader Loader) *Registry {
	r := &Registry{loader: loader}
	r.current.Store(map[string]Policy{})
	return r
}

// Get resuelve una policy por referencia.
func (r *Registry) Get(ref string) (Policy, bool) {
	m := r.current.Load().(map[string]Policy)
	p, ok := m[ref]
	return p, ok
}

// Refs devuelve las referencias cargadas (para el admin surface).
func (r *Registry) Refs() []string {
	m := r.current.Load().(map[string]Policy)
	out := make([]string, 0, len(m))
	for ref := range m {
		out = append(out, ref)
	}
	return out
}

// Register agrega o reemplaza una policy individual (copy-on-write).
// Pensado para wiring estático y tests.
func (r *Registry) Register(ref string, p Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.current.Load().(map[string]Policy)
	next := make(map[string]Policy, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[ref] = p
	r.current.Store(next)
}

// Reload recarga el set completo desde el loader. Llamadas concurrentes
// comparten un único reload. Sin loader configurado no hay nada que
// recargar: se preserva el set actual (p.ej. policies registradas vía
// Register) y se deja constancia en el log.
func (r *Registry) Reload(ctx context.Context) error {
	if r.loader == nil {
		logger.From(ctx).Warn("policy reload requested but no loader is configured",
			logger.Count(len(r.Refs())))
		return nil
	}
	_, err, _ := r.sf.Do("reload", func() (any, error) {
		next, err := r.loader(ctx)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.current.Store(next)
		r.mu.Unlock()
		logger.From(ctx).Info("policy registry reloaded", logger.Count(len(next)))
		return nil, nil
	})
	return err
}
