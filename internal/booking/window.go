// Package booking decides whether a proposed rental window fits a spot and
// what it costs.
package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/diagnosis/palms-parking/internal/civiltime"
	"github.com/diagnosis/palms-parking/internal/domain"
)

var ErrInvalidWindow = errors.New("invalid window")

// Window error codes, in the order the checks run.
const (
	CodeIncomplete     = "incomplete"
	CodePastStart      = "past_start"
	CodeBeforeSpot     = "before_spot_start"
	CodeAfterSpot      = "after_spot_end"
	CodeEndBeforeStart = "end_before_start"
)

// WindowError is the single user-facing reason a window was rejected.
type WindowError struct {
	Code    string
	Message string
}

func (e *WindowError) Error() string { return e.Message }

func (e *WindowError) Is(target error) bool { return target == ErrInvalidWindow }

func reject(code, msg string) error {
	return &WindowError{Code: code, Message: msg}
}

// Quote is the advisory price of a window. Payment happens off-platform.
type Quote struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Hours       float64   `json:"hours"`
	Days        int       `json:"days"`
	PricePerDay int       `json:"pricePerDay"`
	Total       int       `json:"total"`
	PaymentLink string    `json:"paymentLink,omitempty"`
}

// Estimate prices [start, end] at the spot's daily rate without deciding
// whether the window is admissible. Any partial day is billed as a full day.
func Estimate(spot *domain.Spot, start, end time.Time) Quote {
	hours := civiltime.HoursBetween(start, end)
	days := civiltime.DaysBetween(start, end)
	return Quote{
		Start:       start,
		End:         end,
		Hours:       hours,
		Days:        days,
		PricePerDay: spot.PricePerDay,
		Total:       days * spot.PricePerDay,
	}
}

// ValidateWindow admits or rejects a rental of spot from..to. The first
// failing check wins:
//
//  1. both bounds present
//  2. start not in the past (civil time)
//  3. start not before the spot opens
//  4. end not after the spot closes
//  5. start before end
func ValidateWindow(spot *domain.Spot, from, to civiltime.Parts, e *civiltime.Engine) (Quote, error) {
	start := e.CombineParts(from)
	end := e.CombineParts(to)
	if !from.Complete() || !to.Complete() || start.IsZero() || end.IsZero() {
		return Quote{}, reject(CodeIncomplete, "Please fill in all date and time fields")
	}

	if e.IsInPast(from.Date, from.Time) {
		return Quote{}, reject(CodePastStart, pastMessage("Rental start time", e))
	}
	if start.Before(spot.AvailableFrom) {
		return Quote{}, reject(CodeBeforeSpot, "Cannot start before "+e.FormatDisplay(spot.AvailableFrom))
	}
	if end.After(spot.AvailableTo) {
		return Quote{}, reject(CodeAfterSpot, "Cannot end after "+e.FormatDisplay(spot.AvailableTo))
	}
	if !start.Before(end) {
		return Quote{}, reject(CodeEndBeforeStart, "End time must be after start time")
	}

	q := Estimate(spot, start, end)
	q.PaymentLink = PaymentLink(spot.Venmo, q.Total, start, end, e)
	return q, nil
}

// ValidateListingWindow checks an owner's availability window. New listings
// may not start in the past; edits of an existing listing may.
func ValidateListingWindow(from, to civiltime.Parts, requireFuture bool, e *civiltime.Engine) (time.Time, time.Time, error) {
	start := e.CombineParts(from)
	end := e.CombineParts(to)
	if !from.Complete() || !to.Complete() || start.IsZero() || end.IsZero() {
		return time.Time{}, time.Time{}, reject(CodeIncomplete, "Please fill in all date and time fields")
	}
	if requireFuture && e.IsInPast(from.Date, from.Time) {
		return time.Time{}, time.Time{}, reject(CodePastStart, pastMessage("Start date/time", e))
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, reject(CodeEndBeforeStart, "End date/time must be after start date/time")
	}
	return start, end, nil
}

func pastMessage(subject string, e *civiltime.Engine) string {
	if e.Label() == "" {
		return subject + " cannot be in the past"
	}
	return fmt.Sprintf("%s cannot be in the past (%s timezone)", subject, e.Label())
}
