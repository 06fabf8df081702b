// Package customer provides read-only access to customer records, which are
// owned by an external service.
package customer

import (
	"context"
	"errors"
	"sync"

	"github.com/nathanyu/mini-ledger/internal/domain"
)

// ErrNotFound is returned when the customer id is unknown
var ErrNotFound = errors.New("customer not found")

// Directory is the lookup surface the ledger needs from the customer service
type Directory interface {
	Exists(ctx context.Context, id int64) (bool, error)

	// DisplayName returns ErrNotFound for unknown ids
	DisplayName(ctx context.Context, id int64) (string, error)
}

// MemoryDirectory is a fixed in-process customer set
type MemoryDirectory struct {
	mu        sync.RWMutex
	customers map[int64]domain.Customer
}

func NewMemoryDirectory(customers []domain.Customer) *MemoryDirectory {
	d := &MemoryDirectory{customers: make(map[int64]domain.Customer, len(customers))}
	for _, c := range customers {
		d.customers[c.ID] = c
	}
	return d
}

func (d *MemoryDirectory) Exists(ctx context.Context, id int64) (bool, error) {
	_, err := d.DisplayName(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (d *MemoryDirectory) DisplayName(ctx context.Context, id int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.customers[id]
	if !ok {
		return "", ErrNotFound
	}
	return c.Name, nil
}
