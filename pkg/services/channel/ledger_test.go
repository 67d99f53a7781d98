package channel

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pay-tools/tx-relay/pkg/models/domain"
	"github.com/pay-tools/tx-relay/pkg/services/render"
)

// fakeMessenger records sends and deletes in memory.
type fakeMessenger struct {
	nextID    int
	deleted   []string
	deleteErr error
}

func (f *fakeMessenger) Send(context.Context, render.Message) (string, error) {
	f.nextID++
	return fmt.Sprintf("msg-%d", f.nextID), nil
}

func (f *fakeMessenger) SendPanel(context.Context, render.Message) (string, error) {
	f.nextID++
	return fmt.Sprintf("panel-%d", f.nextID), nil
}

func (f *fakeMessenger) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

func newTestManager(msgr Messenger, maxAge time.Duration, maxCount int) Manager {
	return NewManager(msgr, Settings{
		ChannelID: "chan-1",
		MaxAge:    maxAge,
		MaxCount:  maxCount,
	})
}

func post(t *testing.T, m Manager, n int) []domain.TrackedMessage {
	t.Helper()
	var out []domain.TrackedMessage
	for i := 0; i < n; i++ {
		tracked, err := m.Post(context.Background(), render.Message{Title: "r"}, domain.KindScheduledReport)
		require.NoError(t, err)
		out = append(out, tracked)
	}
	return out
}

func TestCleanup_MaxCountKeepsNewest(t *testing.T) {
	msgr := &fakeMessenger{}
	m := newTestManager(msgr, 0, 3)

	posted := post(t, m, 5)
	m.Cleanup(context.Background())

	assert.Equal(t, 3, m.Size())
	// Oldest first.
	assert.Equal(t, []string{posted[0].MessageID, posted[1].MessageID}, msgr.deleted)
}

func TestCleanup_MaxCountLargerThanLedgerIsNoop(t *testing.T) {
	msgr := &fakeMessenger{}
	m := newTestManager(msgr, 0, 10)

	post(t, m, 2)
	m.Cleanup(context.Background())

	assert.Equal(t, 2, m.Size())
	assert.Empty(t, msgr.deleted)
}

func TestCleanup_DeleteFailureDropsEntry(t *testing.T) {
	msgr := &fakeMessenger{deleteErr: errors.New("unknown message")}
	m := newTestManager(msgr, 0, 1)

	post(t, m, 3)
	m.Cleanup(context.Background())

	// The entries are gone from the ledger even though the platform said the
	// messages no longer exist.
	assert.Equal(t, 1, m.Size())
	assert.Len(t, msgr.deleted, 2)
}

func TestCleanup_OnlyLedgeredMessagesAreDeleted(t *testing.T) {
	msgr := &fakeMessenger{}
	m := newTestManager(msgr, 0, 0)

	posted := post(t, m, 2)
	m.Cleanup(context.Background())

	// No limits configured: nothing deleted at all, let alone anything the
	// relay never posted.
	assert.Empty(t, msgr.deleted)
	assert.Equal(t, len(posted), m.Size())
}

func TestCleanup_MaxAge(t *testing.T) {
	msgr := &fakeMessenger{}
	m := newTestManager(msgr, 20*time.Millisecond, 0)

	post(t, m, 2)
	time.Sleep(40 * time.Millisecond)
	post(t, m, 1)

	m.Cleanup(context.Background())
	assert.Equal(t, 1, m.Size())
	assert.Len(t, msgr.deleted, 2)
}

func TestRefreshPanel_ReplacesPrevious(t *testing.T) {
	msgr := &fakeMessenger{}
	m := newTestManager(msgr, 0, 0)

	require.NoError(t, m.RefreshPanel(context.Background()))
	assert.Empty(t, msgr.deleted)

	require.NoError(t, m.RefreshPanel(context.Background()))
	assert.Equal(t, []string{"panel-1"}, msgr.deleted)
}
