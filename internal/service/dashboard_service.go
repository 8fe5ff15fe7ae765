package service

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/diagnosis/palms-parking/internal/availability"
	"github.com/diagnosis/palms-parking/internal/civiltime"
	"github.com/diagnosis/palms-parking/internal/domain"
	"github.com/diagnosis/palms-parking/internal/remote"
	"github.com/diagnosis/palms-parking/internal/session"
	"github.com/diagnosis/palms-parking/internal/validate"
	"github.com/diagnosis/palms-parking/pkg/events"
	"github.com/diagnosis/palms-parking/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// Remote is the part of the remote client the dashboard drives.
type Remote interface {
	ValidateAccess(ctx context.Context, code string) remote.ValidateAccessResponse
	GetSpots(ctx context.Context) remote.SpotsResponse
	AddSpot(ctx context.Context, accessCode string, data domain.SpotData) remote.AddSpotResponse
	VerifyPin(ctx context.Context, accessCode, spotID, pin string) remote.Result
	UpdateSpot(ctx context.Context, accessCode, spotID, pin string, data domain.SpotData) remote.Result
	DeleteSpot(ctx context.Context, accessCode, spotID, pin string) remote.Result
	RentSpot(ctx context.Context, accessCode, spotID string, start, end time.Time, renter domain.RenterInfo) remote.RentSpotResponse
}

type DashboardService interface {
	EnterCode(ctx context.Context, clientID, code string) error
	CheckSession(ctx context.Context, clientID string) (session.State, error)
	Authorize(ctx context.Context, clientID string) error
	Logout(ctx context.Context, clientID string) error

	Reload(ctx context.Context, clientID string) (int, error)
	Browse(ctx context.Context, clientID string, f domain.Filters, mode domain.SortMode) (*BrowseResult, error)

	ListSpot(ctx context.Context, clientID string, draft domain.ListingDraft) (string, error)
	VerifyPin(ctx context.Context, clientID, spotID, pin string) (*domain.ManageEditStep, error)
	UpdateSpot(ctx context.Context, clientID, spotID string, form domain.SpotForm) error
	DeleteSpot(ctx context.Context, clientID, spotID string) error
	CancelManage(ctx context.Context, clientID string)

	StartRental(ctx context.Context, clientID, spotID string) (*RentalView, error)
	QuoteRental(ctx context.Context, clientID, spotID string, from, to civiltime.Parts) (*RentalView, error)
	ConfirmRental(ctx context.Context, clientID, spotID string, contact ContactForm) (*domain.RentConfirmed, error)
	CancelRental(ctx context.Context, clientID string)

	Sweep(idle time.Duration) int
}

// BrowseResult is one render of the dashboard list.
type BrowseResult struct {
	Spots      []domain.SpotView `json:"spots"`
	Summary    string            `json:"summary"`
	Filtered   bool              `json:"filtered"`
	Sort       domain.SortMode   `json:"sort"`
	TotalSpots int               `json:"totalSpots"`
}

type dashboardService struct {
	remote Remote
	gate   *session.Gate
	engine *civiltime.Engine
	bus    events.Publisher

	spaces *workspaces
	flight singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewDashboardService(r Remote, gate *session.Gate, engine *civiltime.Engine, bus events.Publisher) DashboardService {
	if bus == nil {
		bus = events.NopPublisher{}
	}
	return &dashboardService{
		remote: r,
		gate:   gate,
		engine: engine,
		bus:    bus,
		spaces: newWorkspaces(engine.Instant),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *dashboardService) EnterCode(ctx context.Context, clientID, code string) error {
	if strings.TrimSpace(code) == "" {
		return rejectFields("Please enter the access code", validate.FieldErrors{"code": "Please enter the access code"})
	}

	resp := s.remote.ValidateAccess(ctx, code)
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "Incorrect access code"
		}
		logger.InfoContext(ctx, "Access code rejected", "client_id", clientID)
		return reject(ErrAccessDenied, msg)
	}

	version := resp.Version
	if version == 0 {
		version = 1
	}
	s.spaces.dispose(clientID)
	return s.gate.Open(ctx, clientID, code, version)
}

func (s *dashboardService) CheckSession(ctx context.Context, clientID string) (session.State, error) {
	state, err := s.gate.Check(ctx, clientID)
	if err != nil {
		return state, err
	}
	if state != session.StateValid {
		s.spaces.dispose(clientID)
	}
	return state, nil
}

// Authorize is the per-request check: the client still holds a cached code
// inside the retention window. The remote version check only runs in
// CheckSession.
func (s *dashboardService) Authorize(ctx context.Context, clientID string) error {
	_, err := s.gate.Credential(ctx, clientID)
	return err
}

func (s *dashboardService) Logout(ctx context.Context, clientID string) error {
	s.spaces.dispose(clientID)
	return s.gate.Close(ctx, clientID)
}

// Reload fetches the whole spot list and reshuffles the random order.
// Concurrent fetches share one remote call. A result older than the list
// already committed, or arriving after a logout, is dropped.
func (s *dashboardService) Reload(ctx context.Context, clientID string) (int, error) {
	ws := s.spaces.get(clientID)
	ws.mu.Lock()
	gen := ws.generation
	ws.loads++
	seq := ws.loads
	ws.mu.Unlock()

	v, _, _ := s.flight.Do("getSpots", func() (interface{}, error) {
		return s.remote.GetSpots(context.WithoutCancel(ctx)), nil
	})
	resp := v.(remote.SpotsResponse)
	if !resp.Success {
		return 0, reject(ErrRemote, "Failed to load spots: "+remoteMessage(resp.Error))
	}

	order := s.shuffle(availability.IDs(resp.Spots))

	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.generation != gen || seq < ws.committed {
		logger.DebugContext(ctx, "Dropping stale spot list", "client_id", clientID)
		return len(ws.spots), nil
	}
	ws.spots = resp.Spots
	ws.order = order
	ws.loaded = true
	ws.committed = seq
	return len(resp.Spots), nil
}

func (s *dashboardService) shuffle(ids []string) availability.Order {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return availability.Shuffle(ids, s.rnd)
}

// ensureLoaded fetches the list the first time a client needs it.
func (s *dashboardService) ensureLoaded(ctx context.Context, clientID string, ws *workspace) error {
	ws.mu.Lock()
	loaded := ws.loaded
	ws.mu.Unlock()
	if loaded {
		return nil
	}
	_, err := s.Reload(ctx, clientID)
	return err
}

func (s *dashboardService) Browse(ctx context.Context, clientID string, f domain.Filters, mode domain.SortMode) (*BrowseResult, error) {
	ws := s.spaces.get(clientID)
	if err := s.ensureLoaded(ctx, clientID, ws); err != nil {
		return nil, err
	}

	ws.mu.Lock()
	selected := availability.Select(ws.spots, f, mode, ws.order, s.engine)
	total := len(ws.spots)
	ws.mu.Unlock()

	views := make([]domain.SpotView, 0, len(selected))
	for i := range selected {
		views = append(views, s.view(&selected[i]))
	}
	return &BrowseResult{
		Spots:      views,
		Summary:    availability.Summary(len(views), f.Date, s.engine),
		Filtered:   availability.HasFilters(f),
		Sort:       mode,
		TotalSpots: total,
	}, nil
}

func (s *dashboardService) view(spot *domain.Spot) domain.SpotView {
	return domain.SpotView{
		ID:            spot.ID,
		Venmo:         spot.Venmo,
		SpotNumber:    spot.SpotNumber,
		Size:          spot.Size,
		Floor:         spot.Floor,
		Notes:         spot.Notes,
		AvailableFrom: spot.AvailableFrom,
		AvailableTo:   spot.AvailableTo,
		FromDisplay:   s.engine.FormatDisplay(spot.AvailableFrom),
		ToDisplay:     s.engine.FormatDisplay(spot.AvailableTo),
		AvailableDays: civiltime.DaysBetween(spot.AvailableFrom, spot.AvailableTo),
		PricePerDay:   spot.PricePerDay,
	}
}

// lookup returns a spot from the client's snapshot, loading it first if
// needed.
func (s *dashboardService) lookup(ctx context.Context, clientID, spotID string) (*workspace, domain.Spot, error) {
	ws := s.spaces.get(clientID)
	if err := s.ensureLoaded(ctx, clientID, ws); err != nil {
		return nil, domain.Spot{}, err
	}
	ws.mu.Lock()
	spot, ok := ws.findSpot(spotID)
	ws.mu.Unlock()
	if !ok {
		return nil, domain.Spot{}, reject(ErrSpotNotFound, "Spot not found")
	}
	return ws, spot, nil
}

// refresh re-fetches after a mutation. The mutation already happened, so a
// failed fetch is only logged.
func (s *dashboardService) refresh(ctx context.Context, clientID string) {
	if _, err := s.Reload(ctx, clientID); err != nil {
		logger.WarnContext(ctx, "Failed to refresh spots after change", "client_id", clientID, "error", err)
	}
}

// refreshIfCurrent refreshes unless the client left while a remote write was
// in flight.
func (s *dashboardService) refreshIfCurrent(ctx context.Context, clientID string, ws *workspace, gen uint64) {
	ws.mu.Lock()
	current := ws.generation == gen
	ws.mu.Unlock()
	if !current {
		logger.DebugContext(ctx, "Skipping refresh, client session ended", "client_id", clientID)
		return
	}
	s.refresh(ctx, clientID)
}

func (s *dashboardService) publish(ctx context.Context, subject string, event interface{}) {
	if err := s.bus.Publish(ctx, subject, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish event", "subject", subject, "error", err)
	}
}

func (s *dashboardService) Sweep(idle time.Duration) int {
	return s.spaces.sweep(idle)
}

// Ensure interface compliance
var _ DashboardService = (*dashboardService)(nil)
var _ Remote = (*remote.Client)(nil)
