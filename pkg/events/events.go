package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/diagnosis/palms-parking/pkg/logger"
	"github.com/nats-io/nats.go"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("palms-dashboard"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSPublisher{conn: conn}, nil
}

func (n *NATSPublisher) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSPublisher) Close() error {
	return n.conn.Drain()
}

// NopPublisher drops every event. Used when NATS_URL is unset.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, subject string, data interface{}) error {
	logger.DebugContext(ctx, "Dropping event, no bus configured", "subject", subject)
	return nil
}

func (NopPublisher) Close() error { return nil }

// Dashboard activity subjects
const (
	SpotListed  = "parking.spot.listed"
	SpotUpdated = "parking.spot.updated"
	SpotDeleted = "parking.spot.deleted"
	SpotRented  = "parking.spot.rented"
)

type SpotListedEvent struct {
	SpotID        string    `json:"spot_id"`
	Venmo         string    `json:"venmo"`
	AvailableFrom time.Time `json:"available_from"`
	AvailableTo   time.Time `json:"available_to"`
	PricePerDay   int       `json:"price_per_day"`
}

type SpotUpdatedEvent struct {
	SpotID    string    `json:"spot_id"`
	Changes   []string  `json:"changes"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SpotDeletedEvent struct {
	SpotID    string    `json:"spot_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

type SpotRentedEvent struct {
	SpotID      string    `json:"spot_id"`
	SpotNumber  string    `json:"spot_number"`
	RenterEmail string    `json:"renter_email"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Days        int       `json:"days"`
	Total       int       `json:"total"`
}
