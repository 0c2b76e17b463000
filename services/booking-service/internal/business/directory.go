package business

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/localli/booking/services/booking-service/internal/model"
	"gopkg.in/yaml.v3"
)

// Directory looks up the businesses appointments are booked against.
type Directory interface {
	Get(ctx context.Context, id string) (model.Business, error)
	ListIDsByOwner(ctx context.Context, ownerID string) ([]string, error)
}

// MemoryDirectory is a read-mostly directory for local runs and tests.
type MemoryDirectory struct {
	mu         sync.RWMutex
	businesses map[string]model.Business
}

func NewMemoryDirectory(businesses ...model.Business) *MemoryDirectory {
	d := &MemoryDirectory{businesses: map[string]model.Business{}}
	for _, b := range businesses {
		d.Put(b)
	}
	return d
}

func (d *MemoryDirectory) Put(b model.Business) {
	d.mu.Lock()
	d.businesses[b.ID] = b
	d.mu.Unlock()
}

func (d *MemoryDirectory) Get(_ context.Context, id string) (model.Business, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.businesses[id]
	if !ok {
		return model.Business{}, fmt.Errorf("%w: business %s", model.ErrNotFound, id)
	}
	return b, nil
}

func (d *MemoryDirectory) ListIDsByOwner(_ context.Context, ownerID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var ids []string
	for id, b := range d.businesses {
		if b.OwnerID == ownerID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type seedFile struct {
	Businesses []model.Business `yaml:"businesses"`
}

// LoadSeedFile reads businesses from a YAML document of the form
//
//	businesses:
//	  - id: barber-1
//	    owner_id: owner-1
//	    hours: {open: "09:00", close: "17:00"}
//	    slot_minutes: 30
func LoadSeedFile(path string) ([]model.Business, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, b := range seed.Businesses {
		if b.ID == "" || b.OwnerID == "" {
			return nil, fmt.Errorf("parse %s: business #%d needs id and owner_id", path, i+1)
		}
	}
	return seed.Businesses, nil
}
