package service

import (
	"context"
	"strings"

	"github.com/diagnosis/palms-parking/internal/booking"
	"github.com/diagnosis/palms-parking/internal/civiltime"
	"github.com/diagnosis/palms-parking/internal/domain"
	"github.com/diagnosis/palms-parking/internal/validate"
	"github.com/diagnosis/palms-parking/pkg/events"
	"github.com/diagnosis/palms-parking/pkg/logger"
)

// RentalView is the rent wizard's window step as the browser renders it.
type RentalView struct {
	Spot       domain.SpotView       `json:"spot"`
	Window     domain.RentWindowStep `json:"window"`
	Bounds     booking.Bounds        `json:"bounds"`
	Quote      booking.Quote         `json:"quote"`
	Admissible bool                  `json:"admissible"`
	Error      string                `json:"error,omitempty"`
}

// ContactForm is the renter's half of the second rent step.
type ContactForm struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Screenshot string `json:"screenshot"`
}

const incompleteContact = "Please fill in all fields correctly and upload a screenshot"

// StartRental opens the rent wizard with the default window: from the later
// of now and the spot opening, to the spot closing.
func (s *dashboardService) StartRental(ctx context.Context, clientID, spotID string) (*RentalView, error) {
	ws, spot, err := s.lookup(ctx, clientID, spotID)
	if err != nil {
		return nil, err
	}
	if !spot.IsAvailable() || !spot.HasValidWindow() {
		return nil, reject(ErrUnavailable, "This spot is no longer available")
	}

	window := booking.DefaultWindow(&spot, s.engine)

	ws.mu.Lock()
	ws.closeWizards()
	ws.rent = &rentFlow{window: window}
	ws.mu.Unlock()

	return s.rentalView(&spot, window), nil
}

// rentalView prices a window and reports whether it would be admitted.
func (s *dashboardService) rentalView(spot *domain.Spot, w domain.RentWindowStep) *RentalView {
	v := &RentalView{
		Spot:   s.view(spot),
		Window: w,
		Bounds: booking.WindowBounds(spot, w, s.engine),
	}
	q, err := booking.ValidateWindow(spot, w.From, w.To, s.engine)
	if err != nil {
		v.Quote = booking.Estimate(spot, s.engine.CombineParts(w.From), s.engine.CombineParts(w.To))
		v.Error = err.Error()
		return v
	}
	v.Quote = q
	v.Admissible = true
	return v
}

// QuoteRental checks a proposed window. An admitted window is remembered so
// the contact step can confirm it; a rejected one clears any earlier
// admission and comes back as a *booking.WindowError.
func (s *dashboardService) QuoteRental(ctx context.Context, clientID, spotID string, from, to civiltime.Parts) (*RentalView, error) {
	ws, spot, err := s.lookup(ctx, clientID, spotID)
	if err != nil {
		return nil, err
	}
	if !spot.IsAvailable() || !spot.HasValidWindow() {
		return nil, reject(ErrUnavailable, "This spot is no longer available")
	}

	w := domain.RentWindowStep{SpotID: spotID, From: from, To: to}
	q, werr := booking.ValidateWindow(&spot, from, to, s.engine)

	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.rent != nil && ws.rent.sending && ws.rent.window.SpotID == spotID {
		return nil, reject(ErrBusy, busyMessage)
	}
	if ws.rent == nil || ws.rent.window.SpotID != spotID {
		ws.closeWizards()
		ws.rent = &rentFlow{}
	}
	ws.rent.window = w
	ws.rent.confirmed = nil
	if werr != nil {
		ws.rent.contact = nil
		return nil, werr
	}
	ws.rent.contact = &domain.RentContactStep{SpotID: spotID, Start: q.Start, End: q.End}

	return &RentalView{
		Spot:       s.view(&spot),
		Window:     w,
		Bounds:     booking.WindowBounds(&spot, w, s.engine),
		Quote:      q,
		Admissible: true,
	}, nil
}

// ConfirmRental sends the booking for the admitted window. Every contact
// field and the payment screenshot are required.
func (s *dashboardService) ConfirmRental(ctx context.Context, clientID, spotID string, contact ContactForm) (*domain.RentConfirmed, error) {
	code, err := s.gate.Credential(ctx, clientID)
	if err != nil {
		return nil, err
	}
	ws := s.spaces.get(clientID)

	ws.mu.Lock()
	flow := ws.rent
	if flow == nil || flow.contact == nil || flow.contact.SpotID != spotID {
		ws.mu.Unlock()
		return nil, reject(ErrNoWindow, "Please choose a valid rental window first")
	}
	if flow.sending {
		ws.mu.Unlock()
		return nil, reject(ErrBusy, busyMessage)
	}
	admitted := flow.contact
	step := *admitted

	fields := validate.FieldErrors{}
	if contact.Email != "" && !validate.IsValidEmail(contact.Email) {
		fields.Add("email", "Please enter a valid email")
	}
	if contact.Phone != "" && !validate.IsValidPhone(contact.Phone) {
		fields.Add("phone", "Please enter a valid 10-digit phone")
	}
	if strings.TrimSpace(contact.Name) == "" || contact.Email == "" || contact.Phone == "" || contact.Screenshot == "" || len(fields) > 0 {
		ws.mu.Unlock()
		return nil, rejectFields(incompleteContact, fields)
	}
	if len(contact.Screenshot) > domain.MaxScreenshotBytes {
		ws.mu.Unlock()
		return nil, rejectFields("Screenshot is too large", validate.FieldErrors{"screenshot": "Please upload a smaller image"})
	}

	step.Name = strings.TrimSpace(contact.Name)
	step.Email = strings.TrimSpace(contact.Email)
	step.Phone = validate.FormatPhone(contact.Phone)
	step.Screenshot = contact.Screenshot

	// The flow stays claimed while the lock is released for the remote call.
	flow.sending = true
	spot, _ := ws.findSpot(spotID)
	gen := ws.generation
	ws.mu.Unlock()

	resp := s.remote.RentSpot(ctx, code, spotID, step.Start, step.End, step.ToRenterInfo())

	ws.mu.Lock()
	current := ws.rent == flow && flow.contact == admitted
	if current {
		flow.sending = false
	}
	if !resp.Success {
		ws.mu.Unlock()
		return nil, reject(ErrRemote, remoteMessage(resp.Error))
	}
	confirmed := domain.RentConfirmed{
		SpotID:     spotID,
		SpotNumber: resp.SpotNumber,
		OwnerPhone: resp.OwnerPhone,
		Start:      step.Start,
		End:        step.End,
	}
	if current {
		flow.contact = nil
		flow.confirmed = &confirmed
	} else {
		// The wizard was closed meanwhile. The booking still went through.
		logger.DebugContext(ctx, "Rental confirmed after its wizard closed", "client_id", clientID, "spot_id", spotID)
	}
	ws.mu.Unlock()

	quote := booking.Estimate(&spot, step.Start, step.End)
	logger.InfoContext(ctx, "Spot rented", "client_id", clientID, "spot_id", spotID, "days", quote.Days)
	s.publish(ctx, events.SpotRented, events.SpotRentedEvent{
		SpotID:      spotID,
		SpotNumber:  resp.SpotNumber,
		RenterEmail: step.Email,
		Start:       step.Start,
		End:         step.End,
		Days:        quote.Days,
		Total:       quote.Total,
	})
	s.refreshIfCurrent(ctx, clientID, ws, gen)
	return &confirmed, nil
}

func (s *dashboardService) CancelRental(ctx context.Context, clientID string) {
	ws := s.spaces.get(clientID)
	ws.mu.Lock()
	ws.rent = nil
	ws.wizard++
	ws.mu.Unlock()
}
