package domain

import (
	"strings"
	"time"
)

type Size string

const (
	SizeFullSize   Size = "Full Size"
	SizeCompact    Size = "Compact"
	SizeMotorcycle Size = "Motorcycle"
)

func ParseSize(s string) (Size, bool) {
	switch Size(s) {
	case SizeFullSize, SizeCompact, SizeMotorcycle:
		return Size(s), true
	default:
		return "", false
	}
}

type Floor string

const (
	FloorP1 Floor = "P1"
	FloorP2 Floor = "P2"
	FloorP3 Floor = "P3"
)

func ParseFloor(s string) (Floor, bool) {
	switch Floor(strings.ToUpper(s)) {
	case FloorP1, FloorP2, FloorP3:
		return Floor(strings.ToUpper(s)), true
	default:
		return "", false
	}
}

type SpotStatus string

const (
	SpotAvailable SpotStatus = "available"
	SpotRented    SpotStatus = "rented"
)

// Spot is one listing as held by the remote spreadsheet. The remote system is
// authoritative; a Spot here is only ever part of a freshly fetched snapshot.
type Spot struct {
	ID            string     `json:"id"`
	Venmo         string     `json:"venmo"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone"`
	SpotNumber    string     `json:"spotNumber"`
	Size          Size       `json:"size"`
	Floor         Floor      `json:"floor"`
	Notes         string     `json:"notes"`
	AvailableFrom time.Time  `json:"availableFrom"`
	AvailableTo   time.Time  `json:"availableTo"`
	PricePerDay   int        `json:"pricePerDay"`
	Status        SpotStatus `json:"status"`
}

func (s *Spot) IsAvailable() bool {
	return s.Status == SpotAvailable
}

// HasValidWindow reports whether both bounds are set and from precedes to.
func (s *Spot) HasValidWindow() bool {
	return !s.AvailableFrom.IsZero() && !s.AvailableTo.IsZero() && s.AvailableFrom.Before(s.AvailableTo)
}

// SpotView is what the browser sees of a spot. It never carries the PIN.
type SpotView struct {
	ID            string    `json:"id"`
	Venmo         string    `json:"venmo"`
	SpotNumber    string    `json:"spotNumber"`
	Size          Size      `json:"size"`
	Floor         Floor     `json:"floor"`
	Notes         string    `json:"notes,omitempty"`
	AvailableFrom time.Time `json:"availableFrom"`
	AvailableTo   time.Time `json:"availableTo"`
	FromDisplay   string    `json:"fromDisplay"`
	ToDisplay     string    `json:"toDisplay"`
	AvailableDays int       `json:"availableDays"`
	PricePerDay   int       `json:"pricePerDay"`
}

// Business rules
const (
	DefaultPricePerDay = 10
	// MaxScreenshotBytes bounds the encoded proof-of-payment image.
	MaxScreenshotBytes = 10 << 20
)
