// Package availability turns a spot snapshot into the list a resident sees.
package availability

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/diagnosis/palms-parking/internal/civiltime"
	"github.com/diagnosis/palms-parking/internal/domain"
)

// Order is a shuffled ranking of spot ids, built once per data load so the
// random sort stays put until the next fetch.
type Order map[string]int

// Shuffle returns a random permutation of ids as an Order.
func Shuffle(ids []string, rnd *rand.Rand) Order {
	perm := make([]string, len(ids))
	copy(perm, ids)
	if rnd == nil {
		rand.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
	} else {
		rnd.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
	}
	return NewOrder(perm)
}

// NewOrder ranks ids in the given sequence.
func NewOrder(ids []string) Order {
	o := make(Order, len(ids))
	for i, id := range ids {
		if _, seen := o[id]; !seen {
			o[id] = i
		}
	}
	return o
}

func (o Order) rank(id string) int {
	if r, ok := o[id]; ok {
		return r
	}
	// Unknown ids go last.
	return len(o)
}

// IDs returns the spot ids of a snapshot in listing order.
func IDs(spots []domain.Spot) []string {
	ids := make([]string, len(spots))
	for i := range spots {
		ids[i] = spots[i].ID
	}
	return ids
}

// Select filters spots down to what is bookable and matches filters, then
// sorts by mode. The input slice is not modified.
func Select(spots []domain.Spot, f domain.Filters, mode domain.SortMode, order Order, engine *civiltime.Engine) []domain.Spot {
	venmo := strings.ToLower(f.Venmo)

	out := make([]domain.Spot, 0, len(spots))
	for _, s := range spots {
		if !s.IsAvailable() {
			continue
		}
		if f.Date != "" && !engine.IsWithinRange(f.Date, s.AvailableFrom, s.AvailableTo) {
			continue
		}
		if venmo != "" && !strings.Contains(strings.ToLower(s.Venmo), venmo) {
			continue
		}
		if f.Size != "" && string(s.Size) != f.Size {
			continue
		}
		if f.Floor != "" && string(s.Floor) != f.Floor {
			continue
		}
		out = append(out, s)
	}

	switch mode {
	case domain.SortSoonest:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].AvailableFrom.Before(out[j].AvailableFrom)
		})
	case domain.SortLongest:
		sort.SliceStable(out, func(i, j int) bool {
			return civiltime.DaysBetween(out[i].AvailableFrom, out[i].AvailableTo) >
				civiltime.DaysBetween(out[j].AvailableFrom, out[j].AvailableTo)
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			return order.rank(out[i].ID) < order.rank(out[j].ID)
		})
	}
	return out
}

func HasFilters(f domain.Filters) bool {
	return f.Date != "" || f.Venmo != "" || f.Size != "" || f.Floor != ""
}

// Summary renders the results line, e.g. "2 spots available on Jun 1, 2024".
func Summary(count int, date string, engine *civiltime.Engine) string {
	noun := "spots"
	if count == 1 {
		noun = "spot"
	}
	s := fmt.Sprintf("%d %s available", count, noun)
	if date != "" {
		if d := engine.Combine(date, "00:00"); !d.IsZero() {
			s += " on " + engine.FormatDate(d)
		}
	}
	return s
}
