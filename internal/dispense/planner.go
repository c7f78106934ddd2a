// Package dispense drafts FIFO cart lines for a requested medicine so the
// oldest stock leaves the shelf first. It only reads; committing the draft is
// the billing engine's job.
package dispense

import (
	"strings"
	"time"

	"medshelf/backend/internal/domain"
	"medshelf/backend/internal/store"
)

type Pick struct {
	domain.LineItem
	ExpiryDate string `json:"expiry_date"`
}

type Plan struct {
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Covered   int    `json:"covered"`
	Shortfall int    `json:"shortfall"`
	Picks     []Pick `json:"picks"`
}

// Lines returns the draft cart for Plan.
func (p Plan) Lines() []domain.LineItem {
	lines := make([]domain.LineItem, 0, len(p.Picks))
	for _, pick := range p.Picks {
		lines = append(lines, pick.LineItem)
	}
	return lines
}

func Suggest(stock []domain.Medicine, req domain.SuggestRequest, asOf time.Time) (Plan, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Plan{}, store.Invalid("name", "is required")
	}
	if req.Quantity < 1 {
		return Plan{}, store.Invalid("quantity", "must be at least 1")
	}

	candidates := make([]domain.Medicine, 0, len(stock))
	for _, med := range stock {
		if med.Quantity < 1 || !strings.EqualFold(strings.TrimSpace(med.Name), name) {
			continue
		}
		if expired, readable := store.Expired(med, asOf); readable && expired {
			continue
		}
		candidates = append(candidates, med)
	}
	store.SortFIFO(candidates)

	plan := Plan{Name: name, Requested: req.Quantity, Picks: make([]Pick, 0, len(candidates))}
	remaining := req.Quantity
	for _, med := range candidates {
		if remaining == 0 {
			break
		}
		take := min(med.Quantity, remaining)
		plan.Picks = append(plan.Picks, Pick{
			LineItem: domain.LineItem{
				MedicineID: med.ID,
				Name:       med.Name,
				Quantity:   take,
			},
			ExpiryDate: med.ExpiryDate,
		})
		remaining -= take
	}
	plan.Covered = req.Quantity - remaining
	plan.Shortfall = remaining
	return plan, nil
}
