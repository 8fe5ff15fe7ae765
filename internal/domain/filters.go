package domain

// Filters narrow the dashboard list. Empty fields are wildcards.
type Filters struct {
	Date  string `json:"date"`
	Venmo string `json:"venmo"`
	Size  string `json:"size"`
	Floor string `json:"floor"`
}

type SortMode string

const (
	SortRandom  SortMode = "random"
	SortSoonest SortMode = "soonest"
	SortLongest SortMode = "longest"
)

// ParseSortMode falls back to random for anything unknown.
func ParseSortMode(s string) SortMode {
	switch SortMode(s) {
	case SortSoonest, SortLongest:
		return SortMode(s)
	default:
		return SortRandom
	}
}
