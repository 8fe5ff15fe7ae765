package remote

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/diagnosis/palms-parking/internal/civiltime"
	"github.com/diagnosis/palms-parking/internal/domain"
)

type ValidateAccessResponse struct {
	Success bool   `json:"success"`
	Version int    `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

type CheckSessionResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

type SpotsResponse struct {
	Success bool          `json:"success"`
	Spots   []domain.Spot `json:"spots"`
	Error   string        `json:"error,omitempty"`
}

type AddSpotResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Result is the reply of verifyPin, updateSpot and deleteSpot.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type RentSpotResponse struct {
	Success    bool   `json:"success"`
	SpotNumber string `json:"spotNumber,omitempty"`
	OwnerPhone string `json:"ownerPhone,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Query-string parameter sets, one per action.

type actionParams struct {
	Action string `url:"action"`
}

type validateAccessParams struct {
	Action string `url:"action"`
	Code   string `url:"code"`
}

type checkSessionParams struct {
	Action  string `url:"action"`
	Version int    `url:"version"`
}

type addSpotParams struct {
	Action     string `url:"action"`
	AccessCode string `url:"accessCode"`
	Data       string `url:"data"`
}

type pinParams struct {
	Action     string `url:"action"`
	AccessCode string `url:"accessCode"`
	SpotID     string `url:"spotId"`
	Pin        string `url:"pin"`
}

type updateSpotParams struct {
	Action     string `url:"action"`
	AccessCode string `url:"accessCode"`
	SpotID     string `url:"spotId"`
	Pin        string `url:"pin"`
	Data       string `url:"data"`
}

// rentSpotBody travels in a POST body; the screenshot is far too large for a
// URL.
type rentSpotBody struct {
	Action        string            `json:"action"`
	AccessCode    string            `json:"accessCode"`
	SpotID        string            `json:"spotId"`
	StartDateTime string            `json:"startDateTime"`
	EndDateTime   string            `json:"endDateTime"`
	RenterInfo    domain.RenterInfo `json:"renterInfo"`
}

type spotsEnvelope struct {
	Success *bool      `json:"success"`
	Spots   []wireSpot `json:"spots"`
	Error   string     `json:"error"`
}

// wireSpot mirrors a spreadsheet row. Cells come back as strings or numbers
// depending on how they were typed, so several fields accept both.
type wireSpot struct {
	ID            flexString `json:"id"`
	Venmo         flexString `json:"venmo"`
	Email         string     `json:"email"`
	Phone         flexString `json:"phone"`
	SpotNumber    flexString `json:"spotNumber"`
	Size          string     `json:"size"`
	Floor         string     `json:"floor"`
	Notes         string     `json:"notes"`
	AvailableFrom string     `json:"availableFrom"`
	AvailableTo   string     `json:"availableTo"`
	PricePerDay   flexInt    `json:"pricePerDay"`
	Status        string     `json:"status"`
}

func (w wireSpot) toDomain(e *civiltime.Engine) domain.Spot {
	size, ok := domain.ParseSize(w.Size)
	if !ok {
		size = domain.SizeFullSize
	}
	floor, ok := domain.ParseFloor(w.Floor)
	if !ok {
		floor = domain.FloorP1
	}
	status := domain.SpotStatus(strings.ToLower(strings.TrimSpace(w.Status)))
	if status == "" {
		status = domain.SpotAvailable
	}
	return domain.Spot{
		ID:            string(w.ID),
		Venmo:         string(w.Venmo),
		Email:         w.Email,
		Phone:         string(w.Phone),
		SpotNumber:    string(w.SpotNumber),
		Size:          size,
		Floor:         floor,
		Notes:         w.Notes,
		AvailableFrom: e.ParseInstant(w.AvailableFrom),
		AvailableTo:   e.ParseInstant(w.AvailableTo),
		PricePerDay:   int(w.PricePerDay),
		Status:        status,
	}
}

type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	str := strings.TrimSpace(string(s))
	if str == "" {
		*f = 0
		return nil
	}
	if n, err := strconv.Atoi(str); err == nil {
		*f = flexInt(n)
		return nil
	}
	v, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return err
	}
	*f = flexInt(int(v))
	return nil
}
