package memory

import (
	"context"
	"sync"
)

// ReferenceDirectory implements domain.ReferenceValidator over in-memory sets.
// Tests and local development register the ids they need.
type ReferenceDirectory struct {
	mu       sync.RWMutex
	clients  map[int64]struct{}
	vehicles map[int64]struct{}
	sellers  map[int64]struct{}
}

// NewReferenceDirectory creates an empty ReferenceDirectory.
func NewReferenceDirectory() *ReferenceDirectory {
	return &ReferenceDirectory{
		clients:  make(map[int64]struct{}),
		vehicles: make(map[int64]struct{}),
		sellers:  make(map[int64]struct{}),
	}
}

// AddClient registers a client id as existing.
func (d *ReferenceDirectory) AddClient(id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clients[id] = struct{}{}
}

// AddVehicle registers a vehicle id as existing.
func (d *ReferenceDirectory) AddVehicle(id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vehicles[id] = struct{}{}
}

// AddSeller registers a seller id as existing.
func (d *ReferenceDirectory) AddSeller(id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sellers[id] = struct{}{}
}

// ClientExists reports whether the client id is registered.
func (d *ReferenceDirectory) ClientExists(ctx context.Context, id int64) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.clients[id]
	return ok, nil
}

// VehicleExists reports whether the vehicle id is registered.
func (d *ReferenceDirectory) VehicleExists(ctx context.Context, id int64) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.vehicles[id]
	return ok, nil
}

// SellerExists reports whether the seller id is registered.
func (d *ReferenceDirectory) SellerExists(ctx context.Context, id int64) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.sellers[id]
	return ok, nil
}
