package identities

import (
	"context"
	"strings"
	"sync"

	"github.com/dmitrijs2005/accountsync/internal/common"
	"github.com/dmitrijs2005/accountsync/internal/identity"
)

// MemoryRepository keeps records in process memory. It enforces the same
// identifier uniqueness as the Postgres schema.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*identity.Record
	order   []string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*identity.Record)}
}

func (r *MemoryRepository) FindByCredential(ctx context.Context, method identity.LoginMethod, value string) (*identity.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		rec := r.records[id]
		v := rec.Identifier(method)
		if v == "" {
			continue
		}
		if method == identity.LoginPhone {
			if v == value {
				return rec.Clone(), nil
			}
		} else if strings.EqualFold(v, value) {
			return rec.Clone(), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*identity.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return rec.Clone(), nil
}

func (r *MemoryRepository) Upsert(ctx context.Context, rec *identity.Record) (*identity.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		if id == rec.ID {
			continue
		}
		if fields := identity.Colliding(rec, r.records[id]); len(fields) > 0 {
			return nil, &ConflictError{Field: fields[0]}
		}
	}

	if _, ok := r.records[rec.ID]; !ok {
		r.order = append(r.order, rec.ID)
	}
	r.records[rec.ID] = rec.Clone()
	return rec.Clone(), nil
}
