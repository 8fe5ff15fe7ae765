package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/diagnosis/palms-parking/internal/civiltime"
	"github.com/diagnosis/palms-parking/internal/domain"
	"github.com/diagnosis/palms-parking/internal/http/handlers"
	"github.com/diagnosis/palms-parking/internal/http/middleware"
	"github.com/diagnosis/palms-parking/internal/remote"
	"github.com/diagnosis/palms-parking/internal/service"
	"github.com/diagnosis/palms-parking/internal/session"
	"github.com/diagnosis/palms-parking/pkg/cache"
	"github.com/diagnosis/palms-parking/pkg/events"
)

// ---------- Fake spreadsheet API ----------

type fakeSheet struct {
	mu      sync.Mutex
	code    string
	version int
	pins    map[string]string
	rents   int
	added   int
}

const sheetSpots = `{"spots":[
	{"id":"1","venmo":"@alice","email":"alice@example.com","phone":"5551234567","spotNumber":"112",
	 "size":"Compact","floor":"P2","availableFrom":"2024-06-02T08:00:00-07:00","availableTo":"2024-06-05T18:00:00-07:00",
	 "pricePerDay":10,"status":"available"},
	{"id":"2","venmo":"@bob","spotNumber":"200","size":"Full Size","floor":"P1",
	 "availableFrom":"2024-06-01T08:00:00-07:00","availableTo":"2024-06-03T08:00:00-07:00",
	 "pricePerDay":12,"status":"rented"}
]}`

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Method == http.MethodPost {
		var body struct {
			Action string `json:"action"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Action == remote.ActionRentSpot {
			f.rents++
			io.WriteString(w, `{"success":true,"spotNumber":"112","ownerPhone":"(555) 123-4567"}`)
			return
		}
		io.WriteString(w, `{"success":false,"error":"unknown action"}`)
		return
	}

	q := r.URL.Query()
	switch q.Get("action") {
	case remote.ActionValidateAccess:
		if q.Get("code") != f.code {
			io.WriteString(w, `{"success":false,"error":"Incorrect access code"}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "version": f.version})
	case remote.ActionCheckSession:
		json.NewEncoder(w).Encode(map[string]bool{"valid": q.Get("version") == itoa(f.version)})
	case remote.ActionGetSpots:
		io.WriteString(w, sheetSpots)
	case remote.ActionAddSpot:
		f.added++
		io.WriteString(w, `{"success":true,"id":"3"}`)
	case remote.ActionVerifyPin, remote.ActionUpdateSpot, remote.ActionDeleteSpot:
		if f.pins[q.Get("spotId")] != q.Get("pin") {
			io.WriteString(w, `{"success":false,"error":"Invalid PIN"}`)
			return
		}
		io.WriteString(w, `{"success":true}`)
	default:
		io.WriteString(w, `{"success":false,"error":"unknown action"}`)
	}
}

func (f *fakeSheet) counts() (added, rents int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.added, f.rents
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

// ---------- Test environment ----------

type env struct {
	t       *testing.T
	sheet   *fakeSheet
	handler http.Handler
	server  *httptest.Server
	client  *http.Client
}

func newEnv(t *testing.T, opts ...func(*handlers.AccessHandler, *handlers.SpotHandler)) *env {
	t.Helper()
	now := civiltime.FixedClock(time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC))
	engine, err := civiltime.Load("America/Los_Angeles", "PST", now)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	sheet := &fakeSheet{code: "palms", version: 2, pins: map[string]string{"1": "1234"}}
	sheetSrv := httptest.NewServer(sheet)
	t.Cleanup(sheetSrv.Close)

	rc := remote.New(sheetSrv.URL, 5*time.Second, engine)
	gate := session.NewGate(session.NewMemoryStore(), rc, domain.SessionRetention, now)
	dashboard := service.NewDashboardService(rc, gate, engine, events.NopPublisher{})

	cookies := handlers.Cookies{Name: "palms_session", Secret: "test-secret", TTL: domain.SessionRetention}
	access := handlers.NewAccessHandler(dashboard, cookies)
	spots := handlers.NewSpotHandler(dashboard, cookies, cache.NewMemoryStore())
	for _, opt := range opts {
		opt(access, spots)
	}
	api := handlers.NewAPI(access, spots)
	mux := http.NewServeMux()
	mux.Handle("/api/", http.StripPrefix("/api", api))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	jar, _ := cookiejar.New(nil)
	return &env{t: t, sheet: sheet, handler: mux, server: srv, client: &http.Client{Jar: jar}}
}

func (e *env) do(method, path string, body interface{}, headers ...string) (int, map[string]interface{}) {
	e.t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		rdr = bytes.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, rdr)
	if err != nil {
		e.t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := e.client.Do(req)
	if err != nil {
		e.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

func (e *env) login() {
	e.t.Helper()
	if status, body := e.do(http.MethodPost, "/api/access", map[string]string{"code": "palms"}); status != http.StatusOK {
		e.t.Fatalf("login status = %d, body = %v", status, body)
	}
}

// ---------- Tests ----------

func TestSessionLifecycle(t *testing.T) {
	e := newEnv(t)

	if _, body := e.do(http.MethodGet, "/api/session", nil); body["state"] != "no_session" {
		t.Errorf("initial state = %v", body["state"])
	}
	status, body := e.do(http.MethodGet, "/api/spots", nil)
	if status != http.StatusUnauthorized || body["code"] != "SESSION_INVALID" || body["state"] != "no_session" {
		t.Errorf("spots without session = %d %v", status, body)
	}

	status, body = e.do(http.MethodPost, "/api/access", map[string]string{"code": ""})
	if status != http.StatusBadRequest || body["error"] != "Please enter the access code" {
		t.Errorf("empty code = %d %v", status, body)
	}
	status, body = e.do(http.MethodPost, "/api/access", map[string]string{"code": "nope"})
	if status != http.StatusUnauthorized || body["code"] != "ACCESS_DENIED" || body["error"] != "Incorrect access code" {
		t.Errorf("wrong code = %d %v", status, body)
	}

	e.login()
	if _, body := e.do(http.MethodGet, "/api/session", nil); body["state"] != "valid" {
		t.Errorf("state after login = %v", body["state"])
	}

	status, body = e.do(http.MethodGet, "/api/spots?sort=soonest", nil)
	if status != http.StatusOK {
		t.Fatalf("spots = %d %v", status, body)
	}
	spots, _ := body["spots"].([]interface{})
	if len(spots) != 1 || body["summary"] != "1 spot available" {
		t.Errorf("spots body = %v", body)
	}
	if len(spots) == 1 {
		if first, _ := spots[0].(map[string]interface{}); first["pin"] != nil || first["email"] != nil {
			t.Errorf("spot view leaks private fields: %v", first)
		}
	}

	if _, body := e.do(http.MethodPost, "/api/logout", nil); body["state"] != "no_session" {
		t.Errorf("logout state = %v", body["state"])
	}
	if status, _ := e.do(http.MethodGet, "/api/spots", nil); status != http.StatusUnauthorized {
		t.Errorf("spots after logout = %d", status)
	}
}

func TestCodeRotationInvalidatesSession(t *testing.T) {
	e := newEnv(t)
	e.login()

	e.sheet.mu.Lock()
	e.sheet.version = 3
	e.sheet.mu.Unlock()

	if _, body := e.do(http.MethodGet, "/api/session", nil); body["state"] != "invalid" {
		t.Errorf("state after rotation = %v", body["state"])
	}
	if _, body := e.do(http.MethodGet, "/api/session", nil); body["state"] != "no_session" {
		t.Errorf("state after cookie cleared = %v", body["state"])
	}
}

func TestListSpotHandler(t *testing.T) {
	e := newEnv(t)
	e.login()

	draft := map[string]interface{}{
		"venmo": "alice", "email": "not-an-email", "phone": "5551234567", "spotNumber": "112",
		"fromDate": "2024-06-02", "toDate": "2024-06-04", "pin": "4321",
	}
	status, body := e.do(http.MethodPost, "/api/spots", draft)
	fields, _ := body["fields"].(map[string]interface{})
	if status != http.StatusBadRequest || fields["email"] != "Please enter a valid email address" {
		t.Errorf("bad email = %d %v", status, body)
	}

	draft["email"] = "alice@example.com"
	status, body = e.do(http.MethodPost, "/api/spots", draft)
	if status != http.StatusCreated || body["id"] != "3" {
		t.Errorf("list = %d %v", status, body)
	}
	if added, _ := e.sheet.counts(); added != 1 {
		t.Errorf("added = %d", added)
	}
}

func TestManageHandlers(t *testing.T) {
	e := newEnv(t)
	e.login()

	status, body := e.do(http.MethodPut, "/api/spots/1", map[string]string{"venmo": "alice"})
	if status != http.StatusConflict || body["code"] != "PIN_NOT_VERIFIED" {
		t.Errorf("update before pin = %d %v", status, body)
	}

	status, body = e.do(http.MethodPost, "/api/spots/1/manage/pin", map[string]string{"pin": "0000"})
	if status != http.StatusForbidden || body["error"] != "Incorrect PIN" {
		t.Errorf("wrong pin = %d %v", status, body)
	}

	status, body = e.do(http.MethodPost, "/api/spots/9/manage/pin", map[string]string{"pin": "1234"})
	if status != http.StatusNotFound {
		t.Errorf("unknown spot = %d %v", status, body)
	}

	status, body = e.do(http.MethodPost, "/api/spots/1/manage/pin", map[string]string{"pin": "1234"})
	if status != http.StatusOK {
		t.Fatalf("verify = %d %v", status, body)
	}
	form, _ := body["form"].(map[string]interface{})
	if form["venmo"] != "alice" || form["fromDate"] != "2024-06-02" || body["VerifiedPin"] != nil {
		t.Errorf("manage step = %v", body)
	}

	form["pricePerDay"] = 15
	if status, body := e.do(http.MethodPut, "/api/spots/1", form); status != http.StatusOK {
		t.Errorf("update = %d %v", status, body)
	}

	if status, _ := e.do(http.MethodPost, "/api/spots/1/manage/pin", map[string]string{"pin": "1234"}); status != http.StatusOK {
		t.Fatalf("second verify = %d", status)
	}
	if status, body := e.do(http.MethodDelete, "/api/spots/1", nil); status != http.StatusOK || body["status"] != "deleted" {
		t.Errorf("delete = %d %v", status, body)
	}
}

func TestRentalHandlers(t *testing.T) {
	e := newEnv(t)
	e.login()

	status, body := e.do(http.MethodGet, "/api/spots/1/rental", nil)
	if status != http.StatusOK || body["admissible"] != true {
		t.Fatalf("start = %d %v", status, body)
	}

	if status, body := e.do(http.MethodGet, "/api/spots/2/rental", nil); status != http.StatusConflict {
		t.Errorf("rented spot = %d %v", status, body)
	}

	window := func(toDate string) map[string]interface{} {
		return map[string]interface{}{
			"from": map[string]string{"date": "2024-06-02", "time": "08:00"},
			"to":   map[string]string{"date": toDate, "time": "09:00"},
		}
	}
	status, body = e.do(http.MethodPost, "/api/spots/1/rental/quote", window("2024-06-07"))
	if status != http.StatusBadRequest || body["code"] != "INVALID_WINDOW" || body["details"] != "after_spot_end" {
		t.Errorf("long window = %d %v", status, body)
	}

	status, body = e.do(http.MethodPost, "/api/spots/1/rental/quote", window("2024-06-03"))
	quote, _ := body["quote"].(map[string]interface{})
	if status != http.StatusOK || quote["days"] != float64(2) || quote["total"] != float64(20) {
		t.Fatalf("quote = %d %v", status, body)
	}

	contact := map[string]string{"name": "Bob", "email": "bob@example.com", "phone": "5559876543"}
	status, body = e.do(http.MethodPost, "/api/spots/1/rental/confirm", contact)
	if status != http.StatusBadRequest || body["error"] != "Please fill in all fields correctly and upload a screenshot" {
		t.Errorf("no screenshot = %d %v", status, body)
	}

	contact["screenshot"] = "data:image/png;base64,AAAA"
	status, body = e.do(http.MethodPost, "/api/spots/1/rental/confirm", contact, "Idempotency-Key", "rent-1")
	if status != http.StatusCreated || body["spotNumber"] != "112" || body["ownerPhone"] != "(555) 123-4567" {
		t.Fatalf("confirm = %d %v", status, body)
	}

	status, body = e.do(http.MethodPost, "/api/spots/1/rental/confirm", contact, "Idempotency-Key", "rent-1")
	if status != http.StatusCreated || body["spotNumber"] != "112" {
		t.Errorf("replay = %d %v", status, body)
	}
	if _, rents := e.sheet.counts(); rents != 1 {
		t.Errorf("rents = %d; want 1", rents)
	}
}

func TestConfirmRejectsOversizedBody(t *testing.T) {
	e := newEnv(t)
	e.login()

	payload := `{"name":"Bob","screenshot":"` + strings.Repeat("A", 13<<20) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/spots/1/rental/confirm", strings.NewReader(payload))
	u, _ := url.Parse(e.server.URL)
	for _, c := range e.client.Jar.Cookies(u) {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if rec.Code != http.StatusRequestEntityTooLarge || body["code"] != "PAYLOAD_TOO_LARGE" {
		t.Errorf("oversized = %d %v", rec.Code, body)
	}
}

func TestAccessAttemptsAreLimited(t *testing.T) {
	limiter := middleware.NewRateLimiter(middleware.NewMemoryCounter(), middleware.RateLimitConfig{
		Requests: 2,
		Window:   time.Minute,
	})
	e := newEnv(t, func(a *handlers.AccessHandler, s *handlers.SpotHandler) {
		a.Limit = limiter.Middleware()
		s.Limit = limiter.Middleware()
	})

	for i := 0; i < 2; i++ {
		if status, _ := e.do(http.MethodPost, "/api/access", map[string]string{"code": "nope"}); status != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d; want 401", i+1, status)
		}
	}
	status, body := e.do(http.MethodPost, "/api/access", map[string]string{"code": "palms"})
	if status != http.StatusTooManyRequests || body["code"] != "RATE_LIMITED" {
		t.Errorf("third attempt = %d %v; want 429 RATE_LIMITED", status, body)
	}
}
