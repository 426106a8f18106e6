package purchase

import (
	"context"
	"sort"
	"sync"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/id"
	"storeledger/internal/domain"
)

// MemoryRepository is an in-process Repository for tests.
type MemoryRepository struct {
	mu        sync.Mutex
	purchases map[id.ID]Purchase
	snapshots map[id.ID][]Snapshot
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		purchases: make(map[id.ID]Purchase),
		snapshots: make(map[id.ID][]Snapshot),
	}
}

func (r *MemoryRepository) Create(_ context.Context, p *Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.purchases[p.ID]; ok {
		return apperror.NewDuplicate("purchase", "id", p.ID.String())
	}
	r.purchases[p.ID] = header(p)
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, p *Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.purchases[p.ID]
	if !ok || cur.Version != p.Version {
		return apperror.NewConcurrentModification("purchase", p.ID.String())
	}
	p.Version++
	r.purchases[p.ID] = header(p)
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, purchaseID id.ID) (*Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.purchases[purchaseID]
	if !ok || p.DeletionMark {
		return nil, apperror.NewNotFound("purchase", purchaseID.String())
	}
	p.Payments = append(p.Payments[:0:0], p.Payments...)
	return &p, nil
}

func (r *MemoryRepository) GetForUpdate(ctx context.Context, purchaseID id.ID) (*Purchase, error) {
	return r.GetByID(ctx, purchaseID)
}

func (r *MemoryRepository) Delete(_ context.Context, purchaseID id.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.purchases[purchaseID]
	if !ok {
		return apperror.NewNotFound("purchase", purchaseID.String())
	}
	p.MarkDeleted()
	r.purchases[purchaseID] = p
	return nil
}

func (r *MemoryRepository) List(_ context.Context, f domain.ListFilter) (domain.ListResult[*Purchase], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []*Purchase
	for _, p := range r.purchases {
		if p.StoreID != f.StoreID || (p.DeletionMark && !f.IncludeDeleted) {
			continue
		}
		if f.CounterpartyID != nil && p.SupplierID != *f.CounterpartyID {
			continue
		}
		if f.State != "" && string(p.State) != f.State {
			continue
		}
		p := p
		items = append(items, &p)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Number < items[j].Number })

	total := int64(len(items))
	if f.Offset < len(items) {
		items = items[f.Offset:]
	} else {
		items = nil
	}
	if f.Limit > 0 && len(items) > f.Limit {
		items = items[:f.Limit]
	}
	return domain.ListResult[*Purchase]{Items: items, TotalCount: total, Limit: f.Limit, Offset: f.Offset}, nil
}

func (r *MemoryRepository) AppendSnapshot(_ context.Context, s *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	chain := r.snapshots[s.PurchaseID]
	if len(chain) > 0 && chain[len(chain)-1].Seq >= s.Seq {
		return apperror.NewConcurrentModification("purchase", s.PurchaseID.String())
	}
	cp := *s
	cp.Lines = append(Lines(nil), s.Lines...)
	r.snapshots[s.PurchaseID] = append(chain, cp)
	return nil
}

func (r *MemoryRepository) GetSnapshots(_ context.Context, purchaseID id.ID) ([]*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chain := r.snapshots[purchaseID]
	out := make([]*Snapshot, len(chain))
	for i := range chain {
		s := chain[i]
		s.Lines = append(Lines(nil), chain[i].Lines...)
		out[i] = &s
	}
	return out, nil
}

// header returns a detached copy of the purchase without its snapshot chain.
func header(p *Purchase) Purchase {
	h := *p
	h.Snapshots = nil
	h.Payments = append(h.Payments[:0:0], p.Payments...)
	return h
}

var _ Repository = (*MemoryRepository)(nil)
