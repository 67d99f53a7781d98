package channel

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pay-tools/tx-relay/pkg/models/domain"
	"github.com/pay-tools/tx-relay/pkg/services/render"
)

// Messenger is the outbound chat surface the manager posts through.
type Messenger interface {
	Send(ctx context.Context, msg render.Message) (messageID string, err error)
	SendPanel(ctx context.Context, msg render.Message) (messageID string, err error)
	Delete(ctx context.Context, messageID string) error
}

// Manager owns the ledger of report-bearing messages the relay has posted.
// Cleanup only ever touches ledgered messages; the channel is never purged
// blindly.
type Manager interface {
	Post(ctx context.Context, msg render.Message, kind domain.MessageKind) (domain.TrackedMessage, error)
	// Cleanup deletes ledgered messages older than MaxAge and any beyond the
	// newest MaxCount, oldest first. A failed delete (message already gone)
	// drops the entry without error.
	Cleanup(ctx context.Context)
	// RefreshPanel replaces the dashboard panel with a fresh one at the
	// bottom of the channel.
	RefreshPanel(ctx context.Context) error
	Size() int
}

type Settings struct {
	ChannelID string
	MaxAge    time.Duration
	MaxCount  int
}

type manager struct {
	messenger Messenger
	settings  Settings

	mu      sync.Mutex
	ledger  []domain.TrackedMessage
	panelID string
}

func NewManager(messenger Messenger, settings Settings) Manager {
	return &manager{
		messenger: messenger,
		settings:  settings,
	}
}

func (m *manager) Post(
	ctx context.Context,
	msg render.Message,
	kind domain.MessageKind,
) (domain.TrackedMessage, error) {
	id, err := m.messenger.Send(ctx, msg)
	if err != nil {
		return domain.TrackedMessage{}, err
	}

	tracked := domain.TrackedMessage{
		MessageID: id,
		ChannelID: m.settings.ChannelID,
		PostedAt:  time.Now(),
		Kind:      kind,
	}

	m.mu.Lock()
	m.ledger = append(m.ledger, tracked)
	m.mu.Unlock()

	return tracked, nil
}

func (m *manager) Cleanup(ctx context.Context) {
	logger := zerolog.Ctx(ctx)
	now := time.Now()

	m.mu.Lock()
	var keep, drop []domain.TrackedMessage
	for _, entry := range m.ledger {
		if m.settings.MaxAge > 0 && now.Sub(entry.PostedAt) > m.settings.MaxAge {
			drop = append(drop, entry)
			continue
		}
		keep = append(keep, entry)
	}
	if m.settings.MaxCount > 0 && len(keep) > m.settings.MaxCount {
		over := len(keep) - m.settings.MaxCount
		drop = append(drop, keep[:over]...)
		keep = keep[over:]
	}
	m.ledger = keep
	m.mu.Unlock()

	for _, entry := range drop {
		if err := m.messenger.Delete(ctx, entry.MessageID); err != nil {
			// Already removed externally; the ledger entry is gone either way.
			logger.Debug().
				Str("message_id", entry.MessageID).
				Err(err).
				Msg("tracked message already gone")
		}
	}
	if len(drop) > 0 {
		logger.Info().Int("deleted", len(drop)).Msg("channel cleanup completed")
	}
}

func (m *manager) RefreshPanel(ctx context.Context) error {
	m.mu.Lock()
	previous := m.panelID
	m.mu.Unlock()

	if previous != "" {
		if err := m.messenger.Delete(ctx, previous); err != nil {
			zerolog.Ctx(ctx).Debug().
				Str("message_id", previous).
				Err(err).
				Msg("stale panel already gone")
		}
	}

	id, err := m.messenger.SendPanel(ctx, render.Panel())
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.panelID = id
	m.mu.Unlock()
	return nil
}

func (m *manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ledger)
}
