package domain

import (
	"time"

	"github.com/diagnosis/palms-parking/internal/civiltime"
)

// SpotForm holds the owner-editable fields shared by the list and manage
// wizards. Dates and times are civil wall-clock values.
type SpotForm struct {
	Venmo       string `json:"venmo"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	SpotNumber  string `json:"spotNumber"`
	Size        Size   `json:"size"`
	Floor       Floor  `json:"floor"`
	Notes       string `json:"notes"`
	FromDate    string `json:"fromDate"`
	FromTime    string `json:"fromTime"`
	ToDate      string `json:"toDate"`
	ToTime      string `json:"toTime"`
	PricePerDay int    `json:"pricePerDay"`
}

func (f SpotForm) From() civiltime.Parts { return civiltime.Parts{Date: f.FromDate, Time: f.FromTime} }

func (f SpotForm) To() civiltime.Parts { return civiltime.Parts{Date: f.ToDate, Time: f.ToTime} }

// ListingDraft is the single step of the add-a-spot wizard.
type ListingDraft struct {
	SpotForm
	Pin string `json:"pin"`
}

// NewListingDraft returns the blank form the add wizard opens with.
func NewListingDraft() ListingDraft {
	return ListingDraft{
		SpotForm: SpotForm{
			Size:        SizeFullSize,
			Floor:       FloorP1,
			FromTime:    "08:00",
			ToTime:      "18:00",
			PricePerDay: DefaultPricePerDay,
		},
	}
}

// SpotData is the "data" payload of addSpot and updateSpot.
type SpotData struct {
	Venmo         string    `json:"venmo"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	SpotNumber    string    `json:"spotNumber"`
	Size          Size      `json:"size"`
	Floor         Floor     `json:"floor"`
	Notes         string    `json:"notes"`
	AvailableFrom time.Time `json:"availableFrom"`
	AvailableTo   time.Time `json:"availableTo"`
	PricePerDay   int       `json:"pricePerDay"`
	Pin           string    `json:"pin,omitempty"`
}

func (f SpotForm) toSpotData(handle string, from, to time.Time) SpotData {
	return SpotData{
		Venmo:         handle,
		Email:         f.Email,
		Phone:         f.Phone,
		SpotNumber:    f.SpotNumber,
		Size:          f.Size,
		Floor:         f.Floor,
		Notes:         f.Notes,
		AvailableFrom: from,
		AvailableTo:   to,
		PricePerDay:   f.PricePerDay,
	}
}

func (d ListingDraft) ToSpotData(handle string, from, to time.Time) SpotData {
	data := d.toSpotData(handle, from, to)
	data.Pin = d.Pin
	return data
}

// ManageEditStep is the manage wizard after a successful PIN check. It
// remembers the verified PIN for the update and delete calls.
type ManageEditStep struct {
	SpotID      string   `json:"spotId"`
	VerifiedPin string   `json:"-"`
	Form        SpotForm `json:"form"`
}

func (s ManageEditStep) ToSpotData(handle string, from, to time.Time) SpotData {
	return s.Form.toSpotData(handle, from, to)
}

// RentWindowStep is the first rent step: the proposed sub-window.
type RentWindowStep struct {
	SpotID string          `json:"spotId"`
	From   civiltime.Parts `json:"from"`
	To     civiltime.Parts `json:"to"`
}

// RentContactStep carries an admitted window plus the renter's details and
// proof of payment.
type RentContactStep struct {
	SpotID     string    `json:"spotId"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	Screenshot string    `json:"-"`
}

func (s RentContactStep) ToRenterInfo() RenterInfo {
	return RenterInfo{
		Name:       s.Name,
		Email:      s.Email,
		Phone:      s.Phone,
		Screenshot: s.Screenshot,
	}
}

// RenterInfo is the renter block of the rentSpot request.
type RenterInfo struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Screenshot string `json:"screenshot,omitempty"`
}

// RentConfirmed is the final rent step, shown once the remote system has
// accepted the booking.
type RentConfirmed struct {
	SpotID     string    `json:"spotId"`
	SpotNumber string    `json:"spotNumber"`
	OwnerPhone string    `json:"ownerPhone"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}
