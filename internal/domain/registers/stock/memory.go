package stock

import (
	"context"
	"sort"
	"sync"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/id"
)

// MemoryRepository is an in-process Repository for tests. It hands out
// copies so that only Update and UpdateBatch change stored state.
type MemoryRepository struct {
	mu      sync.Mutex
	stocks  map[id.ID]Stock
	batches map[id.ID]Batch
	order   []id.ID

	// BatchLocks lists the batches read through GetBatchForUpdate.
	BatchLocks []id.ID
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		stocks:  make(map[id.ID]Stock),
		batches: make(map[id.ID]Batch),
	}
}

func (r *MemoryRepository) GetByID(_ context.Context, stockID id.ID) (*Stock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stocks[stockID]
	if !ok {
		return nil, apperror.NewNotFound("stock", stockID.String())
	}
	return &st, nil
}

func (r *MemoryRepository) GetForUpdate(ctx context.Context, stockID id.ID) (*Stock, error) {
	return r.GetByID(ctx, stockID)
}

func (r *MemoryRepository) FindForUpdate(_ context.Context, storeID, productID id.ID) (*Stock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.stocks {
		if st.StoreID == storeID && st.ProductID == productID {
			return &st, nil
		}
	}
	return nil, apperror.NewNotFound("stock", productID.String())
}

func (r *MemoryRepository) Create(_ context.Context, s *Stock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.stocks {
		if st.StoreID == s.StoreID && st.ProductID == s.ProductID {
			return apperror.NewConcurrentModification("stock", s.ID.String())
		}
	}
	r.stocks[s.ID] = *s
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, s *Stock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.stocks[s.ID]
	if !ok || cur.Version != s.Version {
		return apperror.NewConcurrentModification("stock", s.ID.String())
	}
	s.Version++
	r.stocks[s.ID] = *s
	return nil
}

func (r *MemoryRepository) List(_ context.Context, f Filter) ([]*Stock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Stock
	for _, st := range r.stocks {
		if st.StoreID != f.StoreID || (f.ExcludeZero && st.Quantity == 0) {
			continue
		}
		if len(f.ProductIDs) > 0 && !containsID(f.ProductIDs, st.ProductID) {
			continue
		}
		st := st
		out = append(out, &st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (r *MemoryRepository) CreateBatches(_ context.Context, batches []*Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range batches {
		r.batches[b.ID] = *b
		r.order = append(r.order, b.ID)
	}
	return nil
}

func (r *MemoryRepository) GetBatch(_ context.Context, batchID id.ID) (*Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[batchID]
	if !ok {
		return nil, apperror.NewNotFound("stock status", batchID.String())
	}
	return &b, nil
}

func (r *MemoryRepository) GetBatchForUpdate(ctx context.Context, batchID id.ID) (*Batch, error) {
	b, err := r.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.BatchLocks = append(r.BatchLocks, batchID)
	r.mu.Unlock()
	return b, nil
}

func (r *MemoryRepository) ListBatches(_ context.Context, stockID id.ID) ([]*Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Batch
	for _, bid := range r.order {
		b, ok := r.batches[bid]
		if ok && b.StockID == stockID {
			out = append(out, &b)
		}
	}
	return out, nil
}

func (r *MemoryRepository) UpdateBatch(_ context.Context, b *Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.batches[b.ID]; !ok {
		return apperror.NewNotFound("stock status", b.ID.String())
	}
	r.batches[b.ID] = *b
	return nil
}

func (r *MemoryRepository) DeleteBatch(_ context.Context, batchID id.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.batches, batchID)
	return nil
}

func (r *MemoryRepository) CountBatches(_ context.Context, batchIDs []id.ID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, bid := range batchIDs {
		if _, ok := r.batches[bid]; ok {
			n++
		}
	}
	return n, nil
}

func containsID(ids []id.ID, v id.ID) bool {
	for _, x := range ids {
		if x == v {
			return true
		}
	}
	return false
}

var _ Repository = (*MemoryRepository)(nil)
