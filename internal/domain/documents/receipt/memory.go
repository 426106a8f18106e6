package receipt

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/id"
	"storeledger/internal/domain"
)

// MemoryRepository is an in-process Repository for tests.
type MemoryRepository struct {
	mu        sync.Mutex
	receipts  map[id.ID]Receipt
	snapshots map[id.ID][]StatusSnapshot
	codes     map[string]bool
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		receipts:  make(map[id.ID]Receipt),
		snapshots: make(map[id.ID][]StatusSnapshot),
		codes:     make(map[string]bool),
	}
}

// ReserveCode marks code as used, as if another receipt held it.
func (r *MemoryRepository) ReserveCode(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes[code] = true
}

func (r *MemoryRepository) Create(_ context.Context, rc *Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.codes[rc.Number] {
		return apperror.NewDuplicate("receipt", "code", rc.Number)
	}
	r.codes[rc.Number] = true
	r.receipts[rc.ID] = header(rc)
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, rc *Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.receipts[rc.ID]
	if !ok || cur.Version != rc.Version {
		return apperror.NewConcurrentModification("receipt", rc.ID.String())
	}
	rc.Version++
	r.receipts[rc.ID] = header(rc)
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, receiptID id.ID) (*Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rc, ok := r.receipts[receiptID]
	if !ok || rc.DeletionMark {
		return nil, apperror.NewNotFound("receipt", receiptID.String())
	}
	rc = header(&rc)
	return &rc, nil
}

func (r *MemoryRepository) GetForUpdate(ctx context.Context, receiptID id.ID) (*Receipt, error) {
	return r.GetByID(ctx, receiptID)
}

func (r *MemoryRepository) Delete(_ context.Context, receiptID id.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rc, ok := r.receipts[receiptID]
	if !ok {
		return apperror.NewNotFound("receipt", receiptID.String())
	}
	rc.MarkDeleted()
	r.receipts[receiptID] = rc
	return nil
}

func (r *MemoryRepository) List(_ context.Context, f domain.ListFilter) (domain.ListResult[*Receipt], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []*Receipt
	for _, rc := range r.receipts {
		if rc.StoreID != f.StoreID || (rc.DeletionMark && !f.IncludeDeleted) {
			continue
		}
		if f.CounterpartyID != nil && rc.ClientID != *f.CounterpartyID {
			continue
		}
		if f.State != "" && strconv.Itoa(int(rc.Status)) != f.State {
			continue
		}
		rc := header(&rc)
		items = append(items, &rc)
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
	return domain.ListResult[*Receipt]{Items: items, TotalCount: total, Limit: f.Limit, Offset: f.Offset}, nil
}

func (r *MemoryRepository) CodeExists(_ context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.codes[code], nil
}

func (r *MemoryRepository) AppendSnapshot(_ context.Context, s *StatusSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	chain := r.snapshots[s.ReceiptID]
	if len(chain) > 0 && chain[len(chain)-1].Seq >= s.Seq {
		return apperror.NewConcurrentModification("receipt", s.ReceiptID.String())
	}
	cp := *s
	cp.Lines = append(Lines(nil), s.Lines...)
	r.snapshots[s.ReceiptID] = append(chain, cp)
	return nil
}

func (r *MemoryRepository) UpdateSnapshotLines(_ context.Context, s *StatusSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	chain := r.snapshots[s.ReceiptID]
	for i := range chain {
		if chain[i].ID == s.ID {
			chain[i].Lines = append(Lines(nil), s.Lines...)
			return nil
		}
	}
	return apperror.NewNotFound("receipt status", s.ID.String())
}

func (r *MemoryRepository) GetSnapshots(_ context.Context, receiptID id.ID) ([]*StatusSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chain := r.snapshots[receiptID]
	out := make([]*StatusSnapshot, len(chain))
	for i := range chain {
		s := chain[i]
		s.Lines = append(Lines(nil), chain[i].Lines...)
		out[i] = &s
	}
	return out, nil
}

// header returns a detached copy of the receipt without its status chain.
func header(rc *Receipt) Receipt {
	h := *rc
	h.Snapshots = nil
	h.Payments = append(h.Payments[:0:0], rc.Payments...)
	if rc.ExpectedDeliveryDate != nil {
		d := *rc.ExpectedDeliveryDate
		h.ExpectedDeliveryDate = &d
	}
	return h
}

var _ Repository = (*MemoryRepository)(nil)
