package upstream

import (
	"fmt"
	"sort"
	"sync"

	"github.com/seantiz/vantage/internal/model"
)

// Registry holds the configured datasources by name.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewRegistry creates an empty datasource registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]Client),
	}
}

// Register adds a datasource under the given name, replacing any previous one.
func (r *Registry) Register(name string, c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = c
}

// Resolve returns the client of the datasource identity points at.
func (r *Registry) Resolve(identity model.ClientIdentity) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[identity.Datasource]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDatasource, identity.Datasource)
	}
	return c, nil
}

// List returns every registered datasource, sorted by name for a stable API
// response.
func (r *Registry) List() []DatasourceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]DatasourceInfo, 0, len(r.clients))
	for name, c := range r.clients {
		info := c.Info()
		info.Name = name
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}
