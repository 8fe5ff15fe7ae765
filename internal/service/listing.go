package service

import (
	"context"
	"errors"
	"strings"

	"github.com/diagnosis/palms-parking/internal/booking"
	"github.com/diagnosis/palms-parking/internal/domain"
	"github.com/diagnosis/palms-parking/internal/validate"
	"github.com/diagnosis/palms-parking/pkg/events"
	"github.com/diagnosis/palms-parking/pkg/logger"
)

// ListSpot validates a new listing and hands it to the remote system. Checks
// run in a fixed order and the first failure is reported: required fields,
// the PIN, a start in the past, then email and phone, then start before end.
func (s *dashboardService) ListSpot(ctx context.Context, clientID string, draft domain.ListingDraft) (string, error) {
	code, err := s.gate.Credential(ctx, clientID)
	if err != nil {
		return "", err
	}

	handle := validate.NormalizeHandle(draft.Venmo)
	f := draft.SpotForm
	if handle == "" || strings.TrimSpace(f.Email) == "" || strings.TrimSpace(f.Phone) == "" ||
		strings.TrimSpace(f.SpotNumber) == "" || f.FromDate == "" || f.FromTime == "" || f.ToDate == "" || f.ToTime == "" {
		return "", reject(ErrInvalidInput, "Please fill in all required fields")
	}

	fields := validate.FieldErrors{}
	if !validate.IsValidEmail(f.Email) {
		fields.Add("email", "Please enter a valid email address")
	}
	if !validate.IsValidPhone(f.Phone) {
		fields.Add("phone", "Please enter a valid 10-digit phone number")
	}
	checkSpotEnums(&draft.SpotForm, fields)

	if !validate.IsValidPin(draft.Pin) {
		return "", reject(ErrInvalidInput, "Please enter a 4-digit PIN")
	}

	start, end, werr := booking.ValidateListingWindow(f.From(), f.To(), true, s.engine)
	var we *booking.WindowError
	if errors.As(werr, &we) && we.Code != booking.CodeEndBeforeStart {
		return "", werr
	}
	if len(fields) > 0 {
		return "", rejectFields("Please correct the highlighted fields", fields)
	}
	if werr != nil {
		return "", werr
	}

	draft.Phone = validate.FormatPhone(f.Phone)
	draft.Email = strings.TrimSpace(f.Email)
	data := draft.ToSpotData(handle, start, end)

	resp := s.remote.AddSpot(ctx, code, data)
	if !resp.Success {
		return "", reject(ErrRemote, remoteMessage(resp.Error))
	}

	logger.InfoContext(ctx, "Spot listed", "client_id", clientID, "spot_id", resp.ID)
	s.publish(ctx, events.SpotListed, events.SpotListedEvent{
		SpotID:        resp.ID,
		Venmo:         handle,
		AvailableFrom: start,
		AvailableTo:   end,
		PricePerDay:   data.PricePerDay,
	})
	s.refresh(ctx, clientID)
	return resp.ID, nil
}

// checkSpotEnums fills in defaults for an empty size or floor and flags
// values that are not offered.
func checkSpotEnums(f *domain.SpotForm, fields validate.FieldErrors) {
	if f.Size == "" {
		f.Size = domain.SizeFullSize
	} else if size, ok := domain.ParseSize(string(f.Size)); ok {
		f.Size = size
	} else {
		fields.Add("size", "Please choose a spot size")
	}

	if f.Floor == "" {
		f.Floor = domain.FloorP1
	} else if floor, ok := domain.ParseFloor(string(f.Floor)); ok {
		f.Floor = floor
	} else {
		fields.Add("floor", "Please choose a floor")
	}

	if f.PricePerDay <= 0 {
		fields.Add("pricePerDay", "Required")
	}
}

// VerifyPin opens the edit step of the manage wizard once the remote system
// accepts the PIN. A rejected PIN never reveals more than "Incorrect PIN".
func (s *dashboardService) VerifyPin(ctx context.Context, clientID, spotID, pin string) (*domain.ManageEditStep, error) {
	code, err := s.gate.Credential(ctx, clientID)
	if err != nil {
		return nil, err
	}
	ws, spot, err := s.lookup(ctx, clientID, spotID)
	if err != nil {
		return nil, err
	}

	ws.mu.Lock()
	ws.closeWizards()
	gen, wizard := ws.generation, ws.wizard
	ws.mu.Unlock()

	if !validate.IsValidPin(pin) {
		return nil, reject(ErrInvalidInput, "Please enter a 4-digit PIN")
	}
	resp := s.remote.VerifyPin(ctx, code, spotID, pin)
	if !resp.Success {
		logger.InfoContext(ctx, "PIN rejected", "client_id", clientID, "spot_id", spotID)
		return nil, reject(ErrIncorrectPin, "Incorrect PIN")
	}

	flow := &manageFlow{step: domain.ManageEditStep{
		SpotID:      spotID,
		VerifiedPin: pin,
		Form:        s.formFromSpot(&spot),
	}}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	// Another wizard opened, or the client left, while the PIN was checked.
	if ws.generation != gen || ws.wizard != wizard {
		logger.DebugContext(ctx, "Dropping late PIN verification", "client_id", clientID, "spot_id", spotID)
		return nil, reject(ErrNotVerified, "Please verify the PIN for this spot first")
	}
	ws.manage = flow
	out := flow.step
	return &out, nil
}

func (s *dashboardService) formFromSpot(spot *domain.Spot) domain.SpotForm {
	from := s.engine.ToCivilParts(spot.AvailableFrom)
	to := s.engine.ToCivilParts(spot.AvailableTo)
	price := spot.PricePerDay
	if price <= 0 {
		price = domain.DefaultPricePerDay
	}
	size := spot.Size
	if size == "" {
		size = domain.SizeFullSize
	}
	floor := spot.Floor
	if floor == "" {
		floor = domain.FloorP1
	}
	return domain.SpotForm{
		Venmo:       strings.TrimLeft(spot.Venmo, "@"),
		Email:       spot.Email,
		Phone:       validate.FormatPhone(spot.Phone),
		SpotNumber:  spot.SpotNumber,
		Size:        size,
		Floor:       floor,
		Notes:       spot.Notes,
		FromDate:    from.Date,
		FromTime:    from.Time,
		ToDate:      to.Date,
		ToTime:      to.Time,
		PricePerDay: price,
	}
}

// beginManageWrite claims the open manage flow for spotID for one remote
// write. Callers hold ws.mu and hand the flow back to endManageWrite.
func (ws *workspace) beginManageWrite(spotID string) (*manageFlow, error) {
	flow := ws.manage
	if flow == nil || flow.step.SpotID != spotID {
		return nil, reject(ErrNotVerified, "Please verify the PIN for this spot first")
	}
	if flow.sending {
		return nil, reject(ErrBusy, busyMessage)
	}
	flow.sending = true
	return flow, nil
}

// endManageWrite releases flow. On success the wizard closes, but only if it
// is still the one the write started from.
func (ws *workspace) endManageWrite(flow *manageFlow, ok bool) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.manage != flow {
		return
	}
	flow.sending = false
	if ok {
		ws.manage = nil
	}
}

// UpdateSpot saves an edited listing. Unlike a new listing, an edit may keep
// a start that is already in the past.
func (s *dashboardService) UpdateSpot(ctx context.Context, clientID, spotID string, form domain.SpotForm) error {
	code, err := s.gate.Credential(ctx, clientID)
	if err != nil {
		return err
	}
	ws := s.spaces.get(clientID)

	ws.mu.Lock()
	flow, err := ws.beginManageWrite(spotID)
	if err != nil {
		ws.mu.Unlock()
		return err
	}
	pin := flow.step.VerifiedPin
	before, _ := ws.findSpot(spotID)
	gen := ws.generation
	ws.mu.Unlock()

	fields := validate.FieldErrors{}
	handle := validate.NormalizeHandle(form.Venmo)
	if handle == "" {
		fields.Add("venmo", "Required")
	}
	switch {
	case strings.TrimSpace(form.Email) == "":
		fields.Add("email", "Required")
	case !validate.IsValidEmail(form.Email):
		fields.Add("email", "Invalid email")
	}
	switch {
	case strings.TrimSpace(form.Phone) == "":
		fields.Add("phone", "Required")
	case !validate.IsValidPhone(form.Phone):
		fields.Add("phone", "Invalid phone")
	}
	if strings.TrimSpace(form.SpotNumber) == "" {
		fields.Add("spotNumber", "Required")
	}
	if form.FromDate == "" || form.FromTime == "" {
		fields.Add("fromDate", "Required")
	}
	if form.ToDate == "" || form.ToTime == "" {
		fields.Add("toDate", "Required")
	}
	checkSpotEnums(&form, fields)
	if len(fields) > 0 {
		ws.endManageWrite(flow, false)
		return rejectFields("Please fill in all required fields correctly", fields)
	}

	start, end, err := booking.ValidateListingWindow(form.From(), form.To(), false, s.engine)
	if err != nil {
		ws.endManageWrite(flow, false)
		return err
	}

	form.Phone = validate.FormatPhone(form.Phone)
	form.Email = strings.TrimSpace(form.Email)
	data := domain.ManageEditStep{SpotID: spotID, Form: form}.ToSpotData(handle, start, end)

	resp := s.remote.UpdateSpot(ctx, code, spotID, pin, data)
	if !resp.Success {
		ws.endManageWrite(flow, false)
		return reject(ErrRemote, remoteMessage(resp.Error))
	}
	ws.endManageWrite(flow, true)

	logger.InfoContext(ctx, "Spot updated", "client_id", clientID, "spot_id", spotID)
	s.publish(ctx, events.SpotUpdated, events.SpotUpdatedEvent{
		SpotID:    spotID,
		Changes:   changedFields(before, data),
		UpdatedAt: s.engine.Instant(),
	})
	s.refreshIfCurrent(ctx, clientID, ws, gen)
	return nil
}

func changedFields(before domain.Spot, after domain.SpotData) []string {
	var changes []string
	add := func(name string, changed bool) {
		if changed {
			changes = append(changes, name)
		}
	}
	add("venmo", before.Venmo != after.Venmo)
	add("email", before.Email != after.Email)
	add("phone", validate.DigitsOnly(before.Phone) != validate.DigitsOnly(after.Phone))
	add("spotNumber", before.SpotNumber != after.SpotNumber)
	add("size", before.Size != after.Size)
	add("floor", before.Floor != after.Floor)
	add("notes", before.Notes != after.Notes)
	add("availableFrom", !before.AvailableFrom.Equal(after.AvailableFrom))
	add("availableTo", !before.AvailableTo.Equal(after.AvailableTo))
	add("pricePerDay", before.PricePerDay != after.PricePerDay)
	return changes
}

func (s *dashboardService) DeleteSpot(ctx context.Context, clientID, spotID string) error {
	code, err := s.gate.Credential(ctx, clientID)
	if err != nil {
		return err
	}
	ws := s.spaces.get(clientID)

	ws.mu.Lock()
	flow, err := ws.beginManageWrite(spotID)
	if err != nil {
		ws.mu.Unlock()
		return err
	}
	pin := flow.step.VerifiedPin
	gen := ws.generation
	ws.mu.Unlock()

	resp := s.remote.DeleteSpot(ctx, code, spotID, pin)
	if !resp.Success {
		ws.endManageWrite(flow, false)
		return reject(ErrRemote, remoteMessage(resp.Error))
	}
	ws.endManageWrite(flow, true)

	logger.InfoContext(ctx, "Spot deleted", "client_id", clientID, "spot_id", spotID)
	s.publish(ctx, events.SpotDeleted, events.SpotDeletedEvent{SpotID: spotID, DeletedAt: s.engine.Instant()})
	s.refreshIfCurrent(ctx, clientID, ws, gen)
	return nil
}

func (s *dashboardService) CancelManage(ctx context.Context, clientID string) {
	ws := s.spaces.get(clientID)
	ws.mu.Lock()
	ws.manage = nil
	ws.wizard++
	ws.mu.Unlock()
}
