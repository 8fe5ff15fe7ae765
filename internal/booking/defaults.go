package booking

import (
	"net/url"
	"strings"
	"time"

	"github.com/diagnosis/palms-parking/internal/civiltime"
	"github.com/diagnosis/palms-parking/internal/domain"
	"github.com/google/go-querystring/query"
)

// Bounds are the picker limits for a rent window on the currently chosen
// dates. Empty strings mean unbounded.
type Bounds struct {
	MinStartDate string `json:"minStartDate"`
	MaxDate      string `json:"maxDate"`
	MinStartTime string `json:"minStartTime,omitempty"`
	MaxEndTime   string `json:"maxEndTime,omitempty"`
}

// DefaultWindow proposes the whole remaining window: from the later of the
// spot opening and now, to the spot closing.
func DefaultWindow(spot *domain.Spot, e *civiltime.Engine) domain.RentWindowStep {
	now := e.Now()
	from := e.ToCivilParts(spot.AvailableFrom)

	switch {
	case from.Date < now.Date:
		from = now
	case from.Date == now.Date && from.Time < now.Time:
		from.Time = now.Time
	}

	return domain.RentWindowStep{
		SpotID: spot.ID,
		From:   from,
		To:     e.ToCivilParts(spot.AvailableTo),
	}
}

// WindowBounds computes picker limits for the dates chosen in w.
func WindowBounds(spot *domain.Spot, w domain.RentWindowStep, e *civiltime.Engine) Bounds {
	now := e.Now()
	spotFrom := e.ToCivilParts(spot.AvailableFrom)
	spotTo := e.ToCivilParts(spot.AvailableTo)

	b := Bounds{MinStartDate: spotFrom.Date, MaxDate: spotTo.Date}
	if now.Date > b.MinStartDate {
		b.MinStartDate = now.Date
	}

	switch {
	case w.From.Date == now.Date:
		b.MinStartTime = now.Time
		if spotFrom.Date == now.Date && spotFrom.Time > now.Time {
			b.MinStartTime = spotFrom.Time
		}
	case w.From.Date == spotFrom.Date:
		b.MinStartTime = spotFrom.Time
	}

	if w.To.Date == spotTo.Date {
		b.MaxEndTime = spotTo.Time
	}
	return b
}

type paymentParams struct {
	Txn    string `url:"txn"`
	Amount int    `url:"amount"`
	Note   string `url:"note"`
}

// PaymentLink opens a prefilled Venmo payment to the owner's handle. It is a
// convenience link only; nothing is charged here.
func PaymentLink(handle string, total int, start, end time.Time, e *civiltime.Engine) string {
	user := strings.TrimLeft(handle, "@")
	if user == "" {
		return ""
	}
	startLabel := e.FormatDate(start) + " @ " + e.FormatTime(start)
	note := "Parking Spot Rental: " + startLabel + " to " + e.FormatDisplay(end)

	v, err := query.Values(paymentParams{Txn: "pay", Amount: total, Note: note})
	if err != nil {
		return ""
	}
	return "https://venmo.com/" + url.PathEscape(user) + "?" + v.Encode()
}
