// Package assembly turns a goal-typed template into a concrete, ordered
// question set: the blueprint resolver picks competencies, the selector
// picks items per (indicator, band), and the engine drives both and hands
// the final order to the session layer for transactional persistence.
package assembly

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"sort"

	"github.com/google/uuid"

	"github.com/metriq-ai/metriq/internal/model"
	"github.com/metriq-ai/metriq/internal/storage"
)

// WarningCode labels a non-fatal assembly condition.
type WarningCode string

const (
	WarnBorrowingOccurred WarningCode = "borrowing_occurred"
	WarnInventoryLow      WarningCode = "inventory_low"
)

// Warning is surfaced alongside the assembled order. Warnings never fail
// an assembly.
type Warning struct {
	Code         WarningCode          `json:"code"`
	CompetencyID uuid.UUID            `json:"competency_id"`
	IndicatorID  uuid.UUID            `json:"indicator_id,omitempty"`
	Band         model.DifficultyBand `json:"band,omitempty"`
	Detail       string               `json:"detail"`
}

// ItemSource is the slice of the item repository the selector consumes.
type ItemSource interface {
	ListCandidates(ctx context.Context, f storage.CandidateFilter) ([]model.Item, error)
}

// Selector picks items for one (competency, indicator, band) request.
type Selector struct {
	items          ItemSource
	inventoryFloor int
}

// NewSelector builds a selector. inventoryFloor is the candidate-pool size
// under which an InventoryLow warning is emitted.
func NewSelector(items ItemSource, inventoryFloor int) *Selector {
	return &Selector{items: items, inventoryFloor: inventoryFloor}
}

// SelectRequest scopes one selection call.
type SelectRequest struct {
	CompetencyID uuid.UUID
	IndicatorID  uuid.UUID
	// Siblings are the other active indicators of the same competency,
	// used for borrowing when the primary indicator has no stock in the
	// requested band.
	Siblings     []uuid.UUID
	Band         model.DifficultyBand
	ContextScope model.ContextScope
	Count        int
	Seed         int64
	// Exclude holds item ids already locked into the session's order.
	Exclude map[uuid.UUID]bool
}

// Select returns up to req.Count items for the request plus any warnings.
// Fewer than Count items is not an error; the engine aggregates shortfalls.
func (s *Selector) Select(ctx context.Context, req SelectRequest) ([]model.Item, []Warning, error) {
	if req.Count <= 0 {
		return nil, nil, nil
	}

	candidates, err := s.items.ListCandidates(ctx, storage.CandidateFilter{
		IndicatorID:  req.IndicatorID,
		Band:         req.Band,
		ContextScope: req.ContextScope,
	})
	if err != nil {
		return nil, nil, err
	}
	candidates = filterExcluded(candidates, req.Exclude)

	var warnings []Warning
	if len(candidates) < s.inventoryFloor {
		warnings = append(warnings, Warning{
			Code:         WarnInventoryLow,
			CompetencyID: req.CompetencyID,
			IndicatorID:  req.IndicatorID,
			Band:         req.Band,
			Detail:       "candidate pool below inventory floor",
		})
	}

	if len(candidates) == 0 {
		borrowed, err := s.borrow(ctx, req)
		if err != nil {
			return nil, nil, err
		}
		if len(borrowed) > 0 {
			warnings = append(warnings, Warning{
				Code:         WarnBorrowingOccurred,
				CompetencyID: req.CompetencyID,
				IndicatorID:  req.IndicatorID,
				Band:         req.Band,
				Detail:       "band empty for indicator, borrowed from sibling",
			})
		}
		candidates = borrowed
	}

	rankCandidates(candidates, req.ContextScope, req.Seed)
	if len(candidates) > req.Count {
		candidates = candidates[:req.Count]
	}
	return candidates, warnings, nil
}

// borrow pulls candidates from sibling indicators of the same competency,
// keeping the band fixed.
func (s *Selector) borrow(ctx context.Context, req SelectRequest) ([]model.Item, error) {
	var pool []model.Item
	for _, sib := range req.Siblings {
		if sib == req.IndicatorID {
			continue
		}
		items, err := s.items.ListCandidates(ctx, storage.CandidateFilter{
			IndicatorID:  sib,
			Band:         req.Band,
			ContextScope: req.ContextScope,
		})
		if err != nil {
			return nil, err
		}
		pool = append(pool, filterExcluded(items, req.Exclude)...)
	}
	return pool, nil
}

func filterExcluded(items []model.Item, exclude map[uuid.UUID]bool) []model.Item {
	if len(exclude) == 0 {
		return items
	}
	out := items[:0]
	for _, it := range items {
		if !exclude[it.ID] {
			out = append(out, it)
		}
	}
	return out
}

// rankCandidates orders the pool in tiers: items whose indicator matches
// the requested context scope first, universal fallbacks after, then by
// ascending exposure, ties broken by a seeded FNV hash of the item id so
// repeated assemblies with the same seed are reproducible while different
// sessions spread over equally-exposed items.
func rankCandidates(items []model.Item, scope model.ContextScope, seed int64) {
	sort.SliceStable(items, func(i, j int) bool {
		mi, mj := scopeMatch(items[i], scope), scopeMatch(items[j], scope)
		if mi != mj {
			return mi
		}
		if items[i].ExposureCount != items[j].ExposureCount {
			return items[i].ExposureCount < items[j].ExposureCount
		}
		return seededHash(items[i].ID, seed) < seededHash(items[j].ID, seed)
	})
}

// scopeMatch reports whether the item's indicator carries exactly the
// requested scope. No requested scope (or a universal request) gives no
// item a preference.
func scopeMatch(it model.Item, scope model.ContextScope) bool {
	return scope != "" && scope != model.ScopeUniversal && it.IndicatorScope == scope
}

func seededHash(id uuid.UUID, seed int64) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(seed))
	h.Write(buf[:])
	h.Write(id[:])
	return h.Sum64()
}
