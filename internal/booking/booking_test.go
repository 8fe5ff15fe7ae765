package booking

import (
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/diagnosis/palms-parking/internal/civiltime"
	"github.com/diagnosis/palms-parking/internal/domain"
)

func engineAt(t *testing.T, date, clock string) *civiltime.Engine {
	t.Helper()
	base, err := civiltime.Load("America/Los_Angeles", "PST", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	now := base.Combine(date, clock)
	if now.IsZero() {
		t.Fatalf("bad now %s %s", date, clock)
	}
	return civiltime.New(base.Location(), "PST", civiltime.FixedClock(now))
}

func juneSpot(e *civiltime.Engine) *domain.Spot {
	return &domain.Spot{
		ID:            "spot-1",
		Venmo:         "@jane-doe",
		AvailableFrom: e.Combine("2024-06-01", "08:00"),
		AvailableTo:   e.Combine("2024-06-05", "18:00"),
		PricePerDay:   10,
		Status:        domain.SpotAvailable,
	}
}

func p(date, clock string) civiltime.Parts {
	return civiltime.Parts{Date: date, Time: clock}
}

func codeOf(t *testing.T, err error) string {
	t.Helper()
	var we *WindowError
	if !errors.As(err, &we) {
		t.Fatalf("error %v is not a *WindowError", err)
	}
	if !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("error %v does not match ErrInvalidWindow", err)
	}
	return we.Code
}

func TestValidateWindowPastWinsOverBeforeSpotStart(t *testing.T) {
	e := engineAt(t, "2024-06-02", "00:00")
	spot := juneSpot(e)

	_, err := ValidateWindow(spot, p("2024-05-30", "08:00"), p("2024-06-03", "08:00"), e)
	if err == nil {
		t.Fatal("window admitted; want rejection")
	}
	if code := codeOf(t, err); code != CodePastStart {
		t.Errorf("code = %q; want %q", code, CodePastStart)
	}
	if err.Error() != "Rental start time cannot be in the past (PST timezone)" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestValidateWindowPrecedence(t *testing.T) {
	e := engineAt(t, "2024-05-20", "12:00")
	spot := juneSpot(e)

	tests := []struct {
		name     string
		from, to civiltime.Parts
		code     string
		message  string
	}{
		{"missing start time", p("2024-06-02", ""), p("2024-06-03", "08:00"), CodeIncomplete, "Please fill in all date and time fields"},
		{"missing end date", p("2024-06-02", "08:00"), p("", "08:00"), CodeIncomplete, "Please fill in all date and time fields"},
		{"malformed time", p("2024-06-02", "8am"), p("2024-06-03", "08:00"), CodeIncomplete, "Please fill in all date and time fields"},
		{"incomplete beats past", p("2024-05-01", "08:00"), p("", ""), CodeIncomplete, "Please fill in all date and time fields"},
		{"before spot start", p("2024-06-01", "07:59"), p("2024-06-03", "08:00"), CodeBeforeSpot, "Cannot start before Jun 1, 2024 @ 8:00 AM PST"},
		{"before start beats after end", p("2024-05-31", "08:00"), p("2024-06-07", "08:00"), CodeBeforeSpot, "Cannot start before Jun 1, 2024 @ 8:00 AM PST"},
		{"after spot end", p("2024-06-02", "08:00"), p("2024-06-05", "18:01"), CodeAfterSpot, "Cannot end after Jun 5, 2024 @ 6:00 PM PST"},
		{"after end beats ordering", p("2024-06-04", "08:00"), p("2024-06-06", "08:00"), CodeAfterSpot, "Cannot end after Jun 5, 2024 @ 6:00 PM PST"},
		{"end equals start", p("2024-06-02", "08:00"), p("2024-06-02", "08:00"), CodeEndBeforeStart, "End time must be after start time"},
		{"end before start", p("2024-06-03", "08:00"), p("2024-06-02", "08:00"), CodeEndBeforeStart, "End time must be after start time"},
	}
	for _, tt := range tests {
		_, err := ValidateWindow(spot, tt.from, tt.to, e)
		if err == nil {
			t.Errorf("%s: admitted; want %s", tt.name, tt.code)
			continue
		}
		if code := codeOf(t, err); code != tt.code {
			t.Errorf("%s: code = %q; want %q", tt.name, code, tt.code)
		}
		if err.Error() != tt.message {
			t.Errorf("%s: message = %q; want %q", tt.name, err.Error(), tt.message)
		}
	}
}

func TestValidateWindowQuote(t *testing.T) {
	e := engineAt(t, "2024-05-20", "12:00")
	spot := juneSpot(e)

	tests := []struct {
		name     string
		from, to civiltime.Parts
		hours    float64
		days     int
		total    int
	}{
		{"whole window", p("2024-06-01", "08:00"), p("2024-06-05", "18:00"), 106, 5, 50},
		{"eight hours", p("2024-06-02", "08:00"), p("2024-06-02", "16:00"), 8, 1, 10},
		{"twenty five hours", p("2024-06-02", "08:00"), p("2024-06-03", "09:00"), 25, 2, 20},
		{"forty eight hours", p("2024-06-02", "08:00"), p("2024-06-04", "08:00"), 48, 2, 20},
	}
	for _, tt := range tests {
		q, err := ValidateWindow(spot, tt.from, tt.to, e)
		if err != nil {
			t.Errorf("%s: unexpected rejection %v", tt.name, err)
			continue
		}
		if q.Hours != tt.hours || q.Days != tt.days || q.Total != tt.total {
			t.Errorf("%s: quote = %.1fh %dd $%d; want %.1fh %dd $%d", tt.name, q.Hours, q.Days, q.Total, tt.hours, tt.days, tt.total)
		}
		if !strings.HasPrefix(q.PaymentLink, "https://venmo.com/jane-doe?") {
			t.Errorf("%s: payment link = %q", tt.name, q.PaymentLink)
		}
	}
}

func TestValidateWindowStartingNowIsAllowed(t *testing.T) {
	e := engineAt(t, "2024-06-02", "10:30")
	spot := juneSpot(e)
	if _, err := ValidateWindow(spot, p("2024-06-02", "10:30"), p("2024-06-02", "12:00"), e); err != nil {
		t.Errorf("start at current minute rejected: %v", err)
	}
	if _, err := ValidateWindow(spot, p("2024-06-02", "10:29"), p("2024-06-02", "12:00"), e); err == nil {
		t.Error("start one minute ago admitted")
	}
}

func TestEstimateNonPositive(t *testing.T) {
	e := engineAt(t, "2024-05-20", "12:00")
	spot := juneSpot(e)
	start := e.Combine("2024-06-03", "08:00")
	q := Estimate(spot, start, start.Add(-time.Hour))
	if q.Days != 0 || q.Total != 0 {
		t.Errorf("negative window priced: %+v", q)
	}
	if q := Estimate(spot, time.Time{}, start); q.Hours != 0 || q.Total != 0 {
		t.Errorf("invalid window priced: %+v", q)
	}
}

func TestValidateListingWindow(t *testing.T) {
	e := engineAt(t, "2024-06-02", "10:00")

	if _, _, err := ValidateListingWindow(p("2024-06-01", "08:00"), p("2024-06-03", "08:00"), true, e); err == nil || codeOf(t, err) != CodePastStart {
		t.Errorf("new listing in the past: err = %v", err)
	}
	if _, _, err := ValidateListingWindow(p("2024-06-01", "08:00"), p("2024-06-03", "08:00"), false, e); err != nil {
		t.Errorf("edited listing in the past rejected: %v", err)
	}
	_, _, err := ValidateListingWindow(p("2024-06-04", "08:00"), p("2024-06-04", "08:00"), true, e)
	if err == nil || err.Error() != "End date/time must be after start date/time" {
		t.Errorf("equal bounds: err = %v", err)
	}
	start, end, err := ValidateListingWindow(p("2024-06-04", "08:00"), p("2024-06-05", "18:00"), true, e)
	if err != nil {
		t.Fatalf("valid listing window rejected: %v", err)
	}
	if civiltime.HoursBetween(start, end) != 34 {
		t.Errorf("window = %v .. %v", start, end)
	}
}

func TestDefaultWindow(t *testing.T) {
	tests := []struct {
		name     string
		nowDate  string
		nowTime  string
		wantFrom civiltime.Parts
	}{
		{"spot opens in the future", "2024-05-20", "12:00", p("2024-06-01", "08:00")},
		{"spot opened earlier today", "2024-06-01", "09:15", p("2024-06-01", "09:15")},
		{"spot opens later today", "2024-06-01", "07:00", p("2024-06-01", "08:00")},
		{"spot opened days ago", "2024-06-03", "14:45", p("2024-06-03", "14:45")},
	}
	for _, tt := range tests {
		e := engineAt(t, tt.nowDate, tt.nowTime)
		w := DefaultWindow(juneSpot(e), e)
		if w.From != tt.wantFrom {
			t.Errorf("%s: From = %+v; want %+v", tt.name, w.From, tt.wantFrom)
		}
		if w.To != p("2024-06-05", "18:00") || w.SpotID != "spot-1" {
			t.Errorf("%s: window = %+v", tt.name, w)
		}
	}
}

func TestWindowBounds(t *testing.T) {
	e := engineAt(t, "2024-06-01", "07:00")
	spot := juneSpot(e)

	b := WindowBounds(spot, domain.RentWindowStep{From: p("2024-06-01", "08:00"), To: p("2024-06-05", "18:00")}, e)
	want := Bounds{MinStartDate: "2024-06-01", MaxDate: "2024-06-05", MinStartTime: "08:00", MaxEndTime: "18:00"}
	if b != want {
		t.Errorf("bounds = %+v; want %+v", b, want)
	}

	e = engineAt(t, "2024-06-03", "14:45")
	b = WindowBounds(spot, domain.RentWindowStep{From: p("2024-06-04", "08:00"), To: p("2024-06-04", "20:00")}, e)
	want = Bounds{MinStartDate: "2024-06-03", MaxDate: "2024-06-05"}
	if b != want {
		t.Errorf("bounds = %+v; want %+v", b, want)
	}
}

func TestPaymentLink(t *testing.T) {
	e := engineAt(t, "2024-05-20", "12:00")
	start := e.Combine("2024-06-01", "08:00")
	end := e.Combine("2024-06-02", "08:00")

	link := PaymentLink("@jane-doe", 10, start, end, e)
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("bad link %q: %v", link, err)
	}
	if u.Host != "venmo.com" || u.Path != "/jane-doe" {
		t.Errorf("link target = %s%s", u.Host, u.Path)
	}
	q := u.Query()
	if q.Get("txn") != "pay" || q.Get("amount") != "10" {
		t.Errorf("query = %v", q)
	}
	if want := "Parking Spot Rental: Jun 1, 2024 @ 8:00 AM to Jun 2, 2024 @ 8:00 AM PST"; q.Get("note") != want {
		t.Errorf("note = %q; want %q", q.Get("note"), want)
	}
	if PaymentLink("@", 10, start, end, e) != "" {
		t.Error("empty handle produced a link")
	}
}
