package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pay-tools/tx-relay/pkg/models/domain"
	"github.com/pay-tools/tx-relay/pkg/services/report"
)

type View string

const (
	ViewIdle               View = "idle"
	ViewAwaitingCustomDate View = "awaiting_custom_date"
	ViewShowingResult      View = "showing_result"
)

type Input string

const (
	InputToday     Input = "today"
	InputYesterday Input = "yesterday"
	InputCustom    Input = "custom"
	InputBack      Input = "back"
	InputClear     Input = "clear"
)

var (
	// ErrUnauthorized denies a non-allow-listed actor. State is untouched
	// and the caller shows an ephemeral notice, nothing is logged as an
	// error.
	ErrUnauthorized = errors.New("user is not allow-listed")
	// ErrStaleInteraction rejects an input that does not apply to the
	// session's current view. The caller re-renders the current state; there
	// is no side effect.
	ErrStaleInteraction = errors.New("interaction does not match session state")
)

// Housekeeper is the slice of the channel lifecycle manager the Clear control
// needs.
type Housekeeper interface {
	Cleanup(ctx context.Context)
	RefreshPanel(ctx context.Context) error
}

// Outcome tells the chat adapter what to show after an input was applied.
type Outcome struct {
	SessionID uuid.UUID
	View      View
	// Result is set when the view shows a fresh report.
	Result *domain.ReportResult
	// Notice is a user-facing message shown instead of (or alongside) the
	// view, e.g. a validation hint or an upstream failure.
	Notice string
	// PromptDate asks the adapter to open the date input.
	PromptDate bool
}

type Manager interface {
	Press(ctx context.Context, userID string, input Input) (Outcome, error)
	SubmitCustomDate(ctx context.Context, userID, startRaw, endRaw string) (Outcome, error)
	// Dismiss destroys the user's session. In-flight query results for it
	// are discarded when they complete.
	Dismiss(userID string)
	// Run sweeps idle sessions until ctx is cancelled.
	Run(ctx context.Context)
	SessionCount() int
}

type Settings struct {
	AllowedUserIDs []string
	IdleTimeout    time.Duration
	Location       *time.Location
}

type session struct {
	id          uuid.UUID
	ownerUserID string
	createdAt   time.Time

	mu         sync.Mutex
	view       View
	generation uint64
	lastResult *domain.ReportResult
	lastActive time.Time
	destroyed  bool
}

type manager struct {
	aggregator  report.Aggregator
	housekeeper Housekeeper
	settings    Settings
	allowed     map[string]struct{}

	mu       sync.Mutex
	sessions map[string]*session
}

func NewManager(aggregator report.Aggregator, housekeeper Housekeeper, settings Settings) Manager {
	allowed := make(map[string]struct{}, len(settings.AllowedUserIDs))
	for _, id := range settings.AllowedUserIDs {
		allowed[id] = struct{}{}
	}
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	return &manager{
		aggregator:  aggregator,
		housekeeper: housekeeper,
		settings:    settings,
		allowed:     allowed,
		sessions:    make(map[string]*session),
	}
}

func (m *manager) Press(ctx context.Context, userID string, input Input) (Outcome, error) {
	if !m.authorized(userID) {
		return Outcome{}, ErrUnauthorized
	}

	s := m.sessionFor(userID)
	s.mu.Lock()
	s.lastActive = time.Now()

	switch input {
	case InputToday, InputYesterday:
		if s.view == ViewAwaitingCustomDate {
			out := m.snapshotLocked(s)
			s.mu.Unlock()
			return out, ErrStaleInteraction
		}
		day := time.Now().In(m.settings.Location)
		if input == InputYesterday {
			day = day.AddDate(0, 0, -1)
		}
		return m.runQueryLocked(ctx, s, userID, domain.SingleDay(day))

	case InputCustom:
		if s.view == ViewAwaitingCustomDate {
			out := m.snapshotLocked(s)
			out.PromptDate = true
			s.mu.Unlock()
			return out, nil
		}
		s.view = ViewAwaitingCustomDate
		out := m.snapshotLocked(s)
		out.PromptDate = true
		s.mu.Unlock()
		return out, nil

	case InputBack:
		if s.view != ViewShowingResult {
			out := m.snapshotLocked(s)
			s.mu.Unlock()
			return out, ErrStaleInteraction
		}
		s.view = ViewIdle
		s.lastResult = nil
		out := m.snapshotLocked(s)
		s.mu.Unlock()
		return out, nil

	case InputClear:
		out := m.snapshotLocked(s)
		s.mu.Unlock()
		m.housekeeper.Cleanup(ctx)
		if err := m.housekeeper.RefreshPanel(ctx); err != nil {
			return out, err
		}
		return out, nil

	default:
		out := m.snapshotLocked(s)
		s.mu.Unlock()
		return out, ErrStaleInteraction
	}
}

func (m *manager) SubmitCustomDate(ctx context.Context, userID, startRaw, endRaw string) (Outcome, error) {
	if !m.authorized(userID) {
		return Outcome{}, ErrUnauthorized
	}

	s := m.sessionFor(userID)
	s.mu.Lock()
	s.lastActive = time.Now()

	if s.view != ViewAwaitingCustomDate {
		out := m.snapshotLocked(s)
		s.mu.Unlock()
		return out, ErrStaleInteraction
	}

	r, err := parseRange(startRaw, endRaw, m.settings.Location)
	if err != nil {
		// Invalid input re-prompts; the session stays where it is and the
		// aggregator is never called.
		out := m.snapshotLocked(s)
		out.Notice = err.Error()
		out.PromptDate = true
		s.mu.Unlock()
		return out, nil
	}

	return m.runQueryLocked(ctx, s, userID, r)
}

// runQueryLocked releases the session lock around the upstream call and
// re-checks the generation before applying the result, so a racing
// double-click or a dismissal never interleaves UI states. The caller must
// hold s.mu.
func (m *manager) runQueryLocked(
	ctx context.Context,
	s *session,
	userID string,
	r domain.DateRange,
) (Outcome, error) {
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	result, err := m.aggregator.GetReport(ctx, domain.ReportQuery{Range: r, RequestedBy: userID})

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed || s.generation != gen {
		zerolog.Ctx(ctx).Debug().
			Str("user", userID).
			Msg("discarding stale query result")
		return m.snapshotLocked(s), ErrStaleInteraction
	}

	switch {
	case errors.Is(err, report.ErrInvalidRange):
		s.view = ViewShowingResult
		s.lastResult = nil
		out := m.snapshotLocked(s)
		out.Notice = fmt.Sprintf("Invalid range %s: %v", r, err)
		return out, nil
	case errors.Is(err, report.ErrUpstreamUnavailable):
		s.view = ViewShowingResult
		s.lastResult = nil
		out := m.snapshotLocked(s)
		out.Notice = fmt.Sprintf("Upstream API is unavailable for %s.", r)
		return out, nil
	case err != nil:
		return m.snapshotLocked(s), err
	}

	s.view = ViewShowingResult
	s.lastResult = &result
	out := m.snapshotLocked(s)
	out.Result = &result
	return out, nil
}

func (m *manager) Dismiss(userID string) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if ok {
		s.mu.Lock()
		s.destroyed = true
		s.mu.Unlock()
	}
}

func (m *manager) Run(ctx context.Context) {
	interval := m.settings.IdleTimeout / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *manager) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-m.settings.IdleTimeout)

	m.mu.Lock()
	var expired []*session
	for userID, s := range m.sessions {
		s.mu.Lock()
		idle := s.lastActive.Before(cutoff)
		s.mu.Unlock()
		if idle {
			expired = append(expired, s)
			delete(m.sessions, userID)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.mu.Lock()
		s.destroyed = true
		s.mu.Unlock()
	}
	if len(expired) > 0 {
		zerolog.Ctx(ctx).Debug().Int("count", len(expired)).Msg("expired idle dashboard sessions")
	}
}

func (m *manager) authorized(userID string) bool {
	if len(m.allowed) == 0 {
		return true
	}
	_, ok := m.allowed[userID]
	return ok
}

func (m *manager) sessionFor(userID string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[userID]; ok {
		return s
	}
	s := &session{
		id:          uuid.New(),
		ownerUserID: userID,
		createdAt:   time.Now(),
		view:        ViewIdle,
		lastActive:  time.Now(),
	}
	m.sessions[userID] = s
	return s
}

// snapshotLocked captures the renderable state. The caller must hold s.mu.
func (m *manager) snapshotLocked(s *session) Outcome {
	out := Outcome{SessionID: s.id, View: s.view}
	if s.view == ViewShowingResult {
		out.Result = s.lastResult
	}
	return out
}

func parseRange(startRaw, endRaw string, loc *time.Location) (domain.DateRange, error) {
	start, err := time.ParseInLocation("2006-01-02", startRaw, loc)
	if err != nil {
		return domain.DateRange{}, fmt.Errorf("start date %q is not YYYY-MM-DD", startRaw)
	}
	if endRaw == "" {
		return domain.SingleDay(start), nil
	}
	end, err := time.ParseInLocation("2006-01-02", endRaw, loc)
	if err != nil {
		return domain.DateRange{}, fmt.Errorf("end date %q is not YYYY-MM-DD", endRaw)
	}
	r := domain.DateRange{Start: start, End: end}
	if !r.Valid() {
		return domain.DateRange{}, fmt.Errorf("start %s is after end %s", startRaw, endRaw)
	}
	return r, nil
}
