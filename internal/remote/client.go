// Package remote talks to the spreadsheet-backed API that owns every spot,
// the PINs and the shared access code.
//
// All actions share one endpoint and are told apart by the "action"
// parameter. Replies always carry a success (or valid) flag and an optional
// message; a call that never got an answer is reported the same way, as a
// failed reply, so callers only ever deal with one shape.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/diagnosis/palms-parking/internal/civiltime"
	"github.com/diagnosis/palms-parking/internal/domain"
	"github.com/diagnosis/palms-parking/pkg/logger"
	"github.com/google/go-querystring/query"
)

// Action names understood by the remote API.
const (
	ActionValidateAccess = "validateAccess"
	ActionCheckSession   = "checkSession"
	ActionGetSpots       = "getSpots"
	ActionAddSpot        = "addSpot"
	ActionVerifyPin      = "verifyPin"
	ActionUpdateSpot     = "updateSpot"
	ActionDeleteSpot     = "deleteSpot"
	ActionRentSpot       = "rentSpot"
)

var errNotConfigured = errors.New("API URL not configured")

// maxReplyBytes bounds how much of a reply is read.
const maxReplyBytes = 32 << 20

type Client struct {
	baseURL string
	http    *http.Client
	engine  *civiltime.Engine
}

// New builds a client for baseURL. A zero timeout means calls wait for as
// long as the caller's context allows.
func New(baseURL string, timeout time.Duration, engine *civiltime.Engine) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		engine:  engine,
	}
}

func (c *Client) ValidateAccess(ctx context.Context, code string) ValidateAccessResponse {
	var out ValidateAccessResponse
	if err := c.get(ctx, validateAccessParams{Action: ActionValidateAccess, Code: code}, &out); err != nil {
		return ValidateAccessResponse{Success: false, Error: c.fail(ctx, ActionValidateAccess, err)}
	}
	return out
}

// CheckSession asks whether version is still the accepted code generation.
func (c *Client) CheckSession(ctx context.Context, version int) CheckSessionResponse {
	var out CheckSessionResponse
	if err := c.get(ctx, checkSessionParams{Action: ActionCheckSession, Version: version}, &out); err != nil {
		return CheckSessionResponse{Valid: false, Error: c.fail(ctx, ActionCheckSession, err)}
	}
	return out
}

// GetSpots fetches the full listing. The remote API answers with just the
// spot list, so any decodable reply counts as success.
func (c *Client) GetSpots(ctx context.Context) SpotsResponse {
	var env spotsEnvelope
	if err := c.get(ctx, actionParams{Action: ActionGetSpots}, &env); err != nil {
		return SpotsResponse{Success: false, Error: c.fail(ctx, ActionGetSpots, err)}
	}
	if env.Success != nil && !*env.Success {
		return SpotsResponse{Success: false, Error: env.Error}
	}
	spots := make([]domain.Spot, 0, len(env.Spots))
	for _, w := range env.Spots {
		spots = append(spots, w.toDomain(c.engine))
	}
	return SpotsResponse{Success: true, Spots: spots}
}

func (c *Client) AddSpot(ctx context.Context, accessCode string, data domain.SpotData) AddSpotResponse {
	payload, err := json.Marshal(data)
	if err != nil {
		return AddSpotResponse{Success: false, Error: c.fail(ctx, ActionAddSpot, err)}
	}
	var out AddSpotResponse
	params := addSpotParams{Action: ActionAddSpot, AccessCode: accessCode, Data: string(payload)}
	if err := c.get(ctx, params, &out); err != nil {
		return AddSpotResponse{Success: false, Error: c.fail(ctx, ActionAddSpot, err)}
	}
	return out
}

func (c *Client) VerifyPin(ctx context.Context, accessCode, spotID, pin string) Result {
	var out Result
	params := pinParams{Action: ActionVerifyPin, AccessCode: accessCode, SpotID: spotID, Pin: pin}
	if err := c.get(ctx, params, &out); err != nil {
		return Result{Success: false, Error: c.fail(ctx, ActionVerifyPin, err)}
	}
	return out
}

func (c *Client) UpdateSpot(ctx context.Context, accessCode, spotID, pin string, data domain.SpotData) Result {
	payload, err := json.Marshal(data)
	if err != nil {
		return Result{Success: false, Error: c.fail(ctx, ActionUpdateSpot, err)}
	}
	var out Result
	params := updateSpotParams{Action: ActionUpdateSpot, AccessCode: accessCode, SpotID: spotID, Pin: pin, Data: string(payload)}
	if err := c.get(ctx, params, &out); err != nil {
		return Result{Success: false, Error: c.fail(ctx, ActionUpdateSpot, err)}
	}
	return out
}

func (c *Client) DeleteSpot(ctx context.Context, accessCode, spotID, pin string) Result {
	var out Result
	params := pinParams{Action: ActionDeleteSpot, AccessCode: accessCode, SpotID: spotID, Pin: pin}
	if err := c.get(ctx, params, &out); err != nil {
		return Result{Success: false, Error: c.fail(ctx, ActionDeleteSpot, err)}
	}
	return out
}

// RentSpot books [start, end] of a spot. It is the only action sent as a POST
// body because it carries the payment screenshot.
func (c *Client) RentSpot(ctx context.Context, accessCode, spotID string, start, end time.Time, renter domain.RenterInfo) RentSpotResponse {
	body := rentSpotBody{
		Action:        ActionRentSpot,
		AccessCode:    accessCode,
		SpotID:        spotID,
		StartDateTime: c.formatInstant(start),
		EndDateTime:   c.formatInstant(end),
		RenterInfo:    renter,
	}
	var out RentSpotResponse
	if err := c.post(ctx, body, &out); err != nil {
		return RentSpotResponse{Success: false, Error: c.fail(ctx, ActionRentSpot, err)}
	}
	return out
}

func (c *Client) formatInstant(t time.Time) string {
	return t.In(c.engine.Location()).Format(time.RFC3339)
}

func (c *Client) get(ctx context.Context, params interface{}, out interface{}) error {
	if c.baseURL == "" {
		return errNotConfigured
	}
	v, err := query.Values(params)
	if err != nil {
		return fmt.Errorf("encode query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+v.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, body interface{}, out interface{}) error {
	if c.baseURL == "" {
		return errNotConfigured
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	// The spreadsheet host only allows simple CORS requests, so JSON goes as
	// text/plain.
	req.Header.Set("Content-Type", "text/plain;charset=utf-8")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	if requestID, ok := req.Context().Value(logger.RequestIDKey).(string); ok {
		req.Header.Set("X-Request-ID", requestID)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remote returned status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}

// fail logs a call that produced no usable reply and returns the message
// reported in its place.
func (c *Client) fail(ctx context.Context, action string, err error) string {
	if errors.Is(err, errNotConfigured) {
		return err.Error()
	}
	logger.WarnContext(ctx, "Remote call failed", "action", action, "error", err)
	return err.Error()
}
