package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/trackflow-backend/internal/barcode"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

type State int

const (
	StateIdle State = iota
	StateLoading
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrNFCDataMissing = errors.New("NFC card data not available")
	ErrNoBatch        = errors.New("no batch selected")
)

// ErrBusy is returned for a submission made while another is in flight. Nothing is queued.
var ErrBusy = errors.New("scan already in progress")

// Screen is one handheld screen. Operations are gated so at most one request is in flight.
type Screen struct {
	log *logger.Logger
	api API

	mu      sync.Mutex
	state   State
	creds   Credentials
	batch   *Batch
	lastErr error
}

func NewScreen(log *logger.Logger, api API) *Screen {
	if log == nil {
		log = logger.Nop()
	}
	return &Screen{log: log.With("component", "ScanScreen"), api: api}
}

func (s *Screen) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Screen) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Screen) Batch() *Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batch
}

// SetOperator records the user id the handheld is logged in as. The card is learnt from a tap.
func (s *Screen) SetOperator(userID uuid.UUID) {
	s.mu.Lock()
	s.creds.UserID = userID
	s.mu.Unlock()
}

// TapCard validates a tapped card and, when no operator is set yet, adopts the card owner.
func (s *Screen) TapCard(ctx context.Context, cardID string) (*Card, error) {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return nil, ErrNFCDataMissing
	}
	var card *Card
	err := s.run(ctx, false, func(ctx context.Context, _ Credentials) error {
		c, err := s.api.ValidateCard(ctx, cardID)
		if err != nil {
			return err
		}
		card = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.creds.UserID == uuid.Nil {
		s.creds.UserID = card.UserID
	}
	if s.creds.UserID != card.UserID {
		s.log.Warn("tapped card belongs to another user", "card_owner", card.UserID, "operator", s.creds.UserID)
	}
	s.creds.CardID = card.CardID
	s.mu.Unlock()
	return card, nil
}

// LookupAssembly resolves a scanned assembly barcode.
func (s *Screen) LookupAssembly(ctx context.Context, code string) (*Assembly, error) {
	s.checkPrefix(code, barcode.PrefixAssembly)
	var out *Assembly
	err := s.run(ctx, true, func(ctx context.Context, creds Credentials) error {
		a, err := s.api.AssemblyByBarcode(ctx, creds, code)
		out = a
		return err
	})
	return out, err
}

// SelectBatch validates a scanned batch barcode and makes it the target of later scans.
func (s *Screen) SelectBatch(ctx context.Context, code string) (*Batch, error) {
	s.checkPrefix(code, barcode.PrefixBatch)
	var out *Batch
	err := s.run(ctx, true, func(ctx context.Context, creds Credentials) error {
		b, err := s.api.ValidateBatch(ctx, creds, code)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.batch = out
	s.mu.Unlock()
	return out, nil
}

// AddToBatch links a scanned assembly to the selected batch.
func (s *Screen) AddToBatch(ctx context.Context, code string) (*AddResult, error) {
	s.checkPrefix(code, barcode.PrefixAssembly)
	batch := s.Batch()
	if batch == nil {
		return nil, ErrNoBatch
	}
	var out *AddResult
	err := s.run(ctx, true, func(ctx context.Context, creds Credentials) error {
		r, err := s.api.AddToBatch(ctx, creds, batch.ID, code)
		out = r
		return err
	})
	if err == nil && out.Partial {
		s.log.Warn("assembly linked with pending follow-ups", "batch_id", batch.ID, "pending", len(out.Pending))
	}
	return out, err
}

func (s *Screen) RemoveFromBatch(ctx context.Context, assemblyID uuid.UUID) (*RemoveResult, error) {
	batch := s.Batch()
	if batch == nil {
		return nil, ErrNoBatch
	}
	var out *RemoveResult
	err := s.run(ctx, true, func(ctx context.Context, creds Credentials) error {
		r, err := s.api.RemoveFromBatch(ctx, creds, batch.ID, assemblyID)
		out = r
		return err
	})
	return out, err
}

func (s *Screen) ChangeStatus(ctx context.Context, assemblyID uuid.UUID, status string) (*Assembly, error) {
	var out *Assembly
	err := s.run(ctx, true, func(ctx context.Context, creds Credentials) error {
		a, err := s.api.ChangeStatus(ctx, creds, assemblyID, status)
		out = a
		return err
	})
	return out, err
}

// run moves the screen through Loading into Success or Error. A call made while Loading
// returns ErrBusy and leaves the state untouched.
func (s *Screen) run(ctx context.Context, needCreds bool, fn func(ctx context.Context, creds Credentials) error) error {
	s.mu.Lock()
	if s.state == StateLoading {
		s.mu.Unlock()
		s.log.Debug("submission ignored while loading")
		return ErrBusy
	}
	creds := s.creds
	if needCreds && !creds.complete() {
		s.state = StateError
		s.lastErr = ErrNFCDataMissing
		s.mu.Unlock()
		return ErrNFCDataMissing
	}
	s.state = StateLoading
	s.mu.Unlock()

	err := fn(ctx, creds)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	if err != nil {
		s.state = StateError
		return err
	}
	s.state = StateSuccess
	return nil
}

func (s *Screen) checkPrefix(code, prefix string) {
	if !barcode.HasPrefix(strings.TrimSpace(code), prefix) {
		s.log.Warn("barcode prefix mismatch; forwarding anyway", "barcode", code, "expected_prefix", prefix)
	}
}
