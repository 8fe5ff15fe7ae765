// Package session decides whether a client's cached access code may still
// be used without asking for it again.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diagnosis/palms-parking/internal/civiltime"
	"github.com/diagnosis/palms-parking/internal/domain"
	"github.com/diagnosis/palms-parking/internal/remote"
	"github.com/diagnosis/palms-parking/pkg/logger"
)

var ErrNoSession = errors.New("no valid session")

type State string

const (
	StateNoSession State = "no_session"
	StateChecking  State = "checking"
	StateValid     State = "valid"
	StateInvalid   State = "invalid"
)

// VersionChecker asks the remote system whether a code generation is still
// current.
type VersionChecker interface {
	CheckSession(ctx context.Context, version int) remote.CheckSessionResponse
}

type Gate struct {
	store     Store
	checker   VersionChecker
	retention time.Duration
	clock     civiltime.Clock
}

func NewGate(store Store, checker VersionChecker, retention time.Duration, clock civiltime.Clock) *Gate {
	if retention <= 0 {
		retention = domain.SessionRetention
	}
	if clock == nil {
		clock = civiltime.RealClock{}
	}
	return &Gate{store: store, checker: checker, retention: retention, clock: clock}
}

// Check runs the gate for one client. An expired record is cleared without
// asking the remote system; a record whose version the remote system rejects
// is cleared too.
func (g *Gate) Check(ctx context.Context, clientID string) (State, error) {
	s, err := g.store.Get(ctx, clientID)
	if err != nil {
		return StateChecking, fmt.Errorf("load session: %w", err)
	}
	if s == nil {
		return StateNoSession, nil
	}

	if s.Expired(g.clock.Now(), g.retention) {
		logger.InfoContext(ctx, "Session expired", "client_id", clientID, "saved_at", s.Timestamp)
		return StateInvalid, g.clear(ctx, clientID)
	}

	resp := g.checker.CheckSession(ctx, s.Version)
	if !resp.Valid {
		logger.InfoContext(ctx, "Session version rejected", "client_id", clientID, "version", s.Version, "reason", resp.Error)
		return StateInvalid, g.clear(ctx, clientID)
	}
	return StateValid, nil
}

// Credential returns the cached access code, or ErrNoSession.
func (g *Gate) Credential(ctx context.Context, clientID string) (string, error) {
	s, err := g.store.Get(ctx, clientID)
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}
	if s == nil || s.Expired(g.clock.Now(), g.retention) {
		return "", ErrNoSession
	}
	return s.Code, nil
}

// Open saves a fresh record for an accepted code, replacing any earlier one.
func (g *Gate) Open(ctx context.Context, clientID, code string, version int) error {
	s := domain.Session{Code: code, Version: version, Timestamp: g.clock.Now()}
	if err := g.store.Put(ctx, clientID, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Close removes the client's record.
func (g *Gate) Close(ctx context.Context, clientID string) error {
	return g.clear(ctx, clientID)
}

func (g *Gate) clear(ctx context.Context, clientID string) error {
	if err := g.store.Delete(ctx, clientID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
