package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/diagnosis/palms-parking/internal/civiltime"
	"github.com/diagnosis/palms-parking/internal/domain"
	"github.com/diagnosis/palms-parking/pkg/logger"
)

func testEngine(t *testing.T) *civiltime.Engine {
	t.Helper()
	e, err := civiltime.Load("America/Los_Angeles", "PST", civiltime.FixedClock(time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return e
}

func TestValidateAccess(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s; want GET", r.Method)
		}
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"success":true,"version":3}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, testEngine(t))
	resp := c.ValidateAccess(context.Background(), "palms2024")
	if !resp.Success || resp.Version != 3 {
		t.Fatalf("resp = %+v; want success with version 3", resp)
	}
	if !strings.Contains(gotQuery, "action=validateAccess") || !strings.Contains(gotQuery, "code=palms2024") {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestCheckSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("version") != "2" {
			w.Write([]byte(`{"valid":false,"error":"stale"}`))
			return
		}
		w.Write([]byte(`{"valid":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, testEngine(t))
	if resp := c.CheckSession(context.Background(), 2); !resp.Valid {
		t.Errorf("CheckSession(2) = %+v; want valid", resp)
	}
	if resp := c.CheckSession(context.Background(), 1); resp.Valid || resp.Error != "stale" {
		t.Errorf("CheckSession(1) = %+v; want invalid with message", resp)
	}
}

func TestGetSpotsDecodesLooseRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"spots":[
			{"id":7,"venmo":"@alice","phone":5551234567,"spotNumber":112,"size":"Compact","floor":"p2",
			 "availableFrom":"2024-06-01T08:00:00-07:00","availableTo":"2024-06-05T18:00:00-07:00",
			 "pricePerDay":"12","status":"Available","pin":1234},
			{"id":"8","size":"","floor":"","pricePerDay":null,"status":""}
		]}`))
	}))
	defer srv.Close()

	e := testEngine(t)
	resp := New(srv.URL, time.Second, e).GetSpots(context.Background())
	if !resp.Success {
		t.Fatalf("GetSpots failed: %s", resp.Error)
	}
	if len(resp.Spots) != 2 {
		t.Fatalf("got %d spots; want 2", len(resp.Spots))
	}

	s := resp.Spots[0]
	if s.ID != "7" || s.SpotNumber != "112" || s.Phone != "5551234567" {
		t.Errorf("identity fields = %+v", s)
	}
	if s.Size != domain.SizeCompact || s.Floor != domain.FloorP2 || s.Status != domain.SpotAvailable || s.PricePerDay != 12 {
		t.Errorf("enum fields = %+v", s)
	}
	// The sheet sends owner PINs along with each row; they are not kept.
	raw, _ := json.Marshal(s)
	var decoded map[string]interface{}
	json.Unmarshal(raw, &decoded)
	if _, ok := decoded["pin"]; ok {
		t.Errorf("decoded spot kept the owner PIN: %s", raw)
	}
	want := time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)
	if !s.AvailableFrom.Equal(want) {
		t.Errorf("AvailableFrom = %v; want %v", s.AvailableFrom, want)
	}

	d := resp.Spots[1]
	if d.Size != domain.SizeFullSize || d.Floor != domain.FloorP1 || d.Status != domain.SpotAvailable || d.PricePerDay != 0 {
		t.Errorf("defaults = %+v", d)
	}
}

func TestGetSpotsExplicitFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error":"Sheet locked"}`))
	}))
	defer srv.Close()

	resp := New(srv.URL, time.Second, testEngine(t)).GetSpots(context.Background())
	if resp.Success || resp.Error != "Sheet locked" {
		t.Errorf("resp = %+v; want failure with remote message", resp)
	}
}

func TestAddSpotSendsDataAsJSON(t *testing.T) {
	var data domain.SpotData
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("action") != ActionAddSpot || q.Get("accessCode") != "code" {
			t.Errorf("query = %v", q)
		}
		if err := json.Unmarshal([]byte(q.Get("data")), &data); err != nil {
			t.Errorf("data is not JSON: %v", err)
		}
		w.Write([]byte(`{"success":true,"id":"42"}`))
	}))
	defer srv.Close()

	e := testEngine(t)
	from := e.Combine("2024-06-02", "08:00")
	to := e.Combine("2024-06-04", "18:00")
	draft := domain.NewListingDraft()
	draft.Pin = "1234"
	draft.SpotNumber = "112"

	resp := New(srv.URL, time.Second, e).AddSpot(context.Background(), "code", draft.ToSpotData("alice", from, to))
	if !resp.Success || resp.ID != "42" {
		t.Fatalf("resp = %+v", resp)
	}
	if data.Pin != "1234" || data.Venmo != "alice" || !data.AvailableFrom.Equal(from) {
		t.Errorf("data = %+v", data)
	}
}

func TestPinActions(t *testing.T) {
	var actions []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		actions = append(actions, q.Get("action"))
		if q.Get("pin") != "1234" || q.Get("spotId") != "7" {
			w.Write([]byte(`{"success":false,"error":"Incorrect PIN"}`))
			return
		}
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, testEngine(t))
	ctx := context.Background()
	if r := c.VerifyPin(ctx, "code", "7", "1234"); !r.Success {
		t.Errorf("VerifyPin = %+v", r)
	}
	if r := c.VerifyPin(ctx, "code", "7", "0000"); r.Success || r.Error != "Incorrect PIN" {
		t.Errorf("VerifyPin wrong pin = %+v", r)
	}
	if r := c.UpdateSpot(ctx, "code", "7", "1234", domain.SpotData{Venmo: "alice"}); !r.Success {
		t.Errorf("UpdateSpot = %+v", r)
	}
	if r := c.DeleteSpot(ctx, "code", "7", "1234"); !r.Success {
		t.Errorf("DeleteSpot = %+v", r)
	}
	want := []string{ActionVerifyPin, ActionVerifyPin, ActionUpdateSpot, ActionDeleteSpot}
	if strings.Join(actions, ",") != strings.Join(want, ",") {
		t.Errorf("actions = %v; want %v", actions, want)
	}
}

func TestRentSpotPostsBody(t *testing.T) {
	var body rentSpotBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s; want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
			t.Errorf("Content-Type = %q", ct)
		}
		if r.Header.Get("X-Request-ID") != "req-1" {
			t.Errorf("X-Request-ID not forwarded")
		}
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Write([]byte(`{"success":true,"spotNumber":"112","ownerPhone":"(555) 123-4567"}`))
	}))
	defer srv.Close()

	e := testEngine(t)
	start := e.Combine("2024-06-02", "08:00")
	end := e.Combine("2024-06-03", "08:00")
	ctx := context.WithValue(context.Background(), logger.RequestIDKey, "req-1")
	renter := domain.RenterInfo{Name: "Bob", Email: "bob@example.com", Phone: "5559876543", Screenshot: "data:image/png;base64,AAAA"}

	resp := New(srv.URL, time.Second, e).RentSpot(ctx, "code", "7", start, end, renter)
	if !resp.Success || resp.SpotNumber != "112" || resp.OwnerPhone == "" {
		t.Fatalf("resp = %+v", resp)
	}
	if body.Action != ActionRentSpot || body.SpotID != "7" || body.RenterInfo.Screenshot == "" {
		t.Errorf("body = %+v", body)
	}
	if body.StartDateTime != "2024-06-02T08:00:00-07:00" {
		t.Errorf("StartDateTime = %q", body.StartDateTime)
	}
}

func TestFailuresDegradeToUnsuccessfulReplies(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		c := New("", time.Second, testEngine(t))
		if r := c.ValidateAccess(context.Background(), "x"); r.Success || r.Error != "API URL not configured" {
			t.Errorf("resp = %+v", r)
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		c := New(url, time.Second, testEngine(t))
		if r := c.GetSpots(context.Background()); r.Success || r.Error == "" {
			t.Errorf("resp = %+v", r)
		}
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()
		c := New(srv.URL, time.Second, testEngine(t))
		if r := c.CheckSession(context.Background(), 1); r.Valid || !strings.Contains(r.Error, "500") {
			t.Errorf("resp = %+v", r)
		}
	})

	t.Run("garbage body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>login</html>`))
		}))
		defer srv.Close()
		c := New(srv.URL, time.Second, testEngine(t))
		if r := c.DeleteSpot(context.Background(), "c", "1", "1234"); r.Success || r.Error == "" {
			t.Errorf("resp = %+v", r)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
			w.Write([]byte(`{"success":true}`))
		}))
		defer srv.Close()
		c := New(srv.URL, 20*time.Millisecond, testEngine(t))
		if r := c.VerifyPin(context.Background(), "c", "1", "1234"); r.Success {
			t.Errorf("resp = %+v; want timeout failure", r)
		}
	})
}
