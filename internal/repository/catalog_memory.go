package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/avrach/go_storefront/internal/domain"
)

type MemoryCatalogRepository struct {
	mu       sync.RWMutex
	services map[string]*domain.Service
}

func NewMemoryCatalogRepository(services ...*domain.Service) *MemoryCatalogRepository {
	repo := &MemoryCatalogRepository{services: make(map[string]*domain.Service)}
	for _, svc := range services {
		repo.services[svc.ID] = svc
	}
	return repo
}

func (m *MemoryCatalogRepository) GetService(_ context.Context, serviceID string) (*domain.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	svc, ok := m.services[serviceID]
	if !ok {
		return nil, ErrServiceNotFound
	}
	cp := *svc
	return &cp, nil
}

func (m *MemoryCatalogRepository) ListServices(_ context.Context) ([]*domain.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	services := make([]*domain.Service, 0, len(m.services))
	for _, svc := range m.services {
		cp := *svc
		services = append(services, &cp)
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	return services, nil
}

// Put upserts a service; tests use it to flip availability mid-scenario.
func (m *MemoryCatalogRepository) Put(svc *domain.Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[svc.ID] = svc
}
