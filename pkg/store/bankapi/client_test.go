package bankapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pay-tools/tx-relay/pkg/models/domain"
)

func testRange(t *testing.T) domain.DateRange {
	t.Helper()
	day := time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC)
	return domain.SingleDay(day)
}

func newTestClient(baseURL string, banks []Bank) Client {
	return NewClient(Settings{
		BaseURL:       baseURL,
		Banks:         banks,
		Timeout:       2 * time.Second,
		RetryMax:      2,
		MaxConcurrent: 5,
	})
}

func TestFetchRange_DecodesPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "006", r.URL.Query().Get("bankid"))
		assert.Equal(t, "2026-02-04 00:00:00", r.URL.Query().Get("datestart"))
		assert.Equal(t, "2026-02-04 23:59:59", r.URL.Query().Get("dateend"))
		fmt.Fprint(w, `{"datareturn":[{"f1":"D","f2":"143005"},{"f1":"T","f7":"4500000"}],"status":"ok"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, []Bank{{Code: "006", Name: "KTB"}})
	outcomes, err := c.FetchRange(context.Background(), testRange(t))
	require.NoError(t, err)
	require.Len(t, outcomes, 1)

	out := outcomes[0]
	require.NoError(t, out.Err)
	require.NotNil(t, out.Payload)
	assert.Len(t, out.Payload.Details(), 1)
	trailer, ok := out.Payload.Trailer()
	require.True(t, ok)
	assert.Equal(t, "4500000", trailer.F7.String())
	assert.Equal(t, "ok", out.Payload.Status)
}

func TestFetchRange_ClientErrorIsNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, []Bank{{Code: "006", Name: "KTB"}})
	outcomes, err := c.FetchRange(context.Background(), testRange(t))
	require.NoError(t, err)

	var he *HTTPError
	require.ErrorAs(t, outcomes[0].Err, &he)
	assert.Equal(t, http.StatusNotFound, he.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFetchRange_ServerErrorIsRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"datareturn":[]}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, []Bank{{Code: "006", Name: "KTB"}})
	outcomes, err := c.FetchRange(context.Background(), testRange(t))
	require.NoError(t, err)
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestFetchRange_ConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // nothing listens any more

	c := newTestClient(srv.URL, []Bank{{Code: "006", Name: "KTB"}})
	outcomes, err := c.FetchRange(context.Background(), testRange(t))
	require.NoError(t, err)
	assert.True(t, errors.Is(outcomes[0].Err, ErrConnection))
}

func TestFetchRange_BoundsConcurrentUpstreamCalls(t *testing.T) {
	const limit = 2
	var inFlight, peak int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		fmt.Fprint(w, `{"datareturn":[]}`)
	}))
	defer srv.Close()

	var banks []Bank
	for i := 0; i < 7; i++ {
		banks = append(banks, Bank{Code: fmt.Sprintf("%03d", i), Name: fmt.Sprintf("bank-%d", i)})
	}

	c := NewClient(Settings{
		BaseURL:       srv.URL,
		Banks:         banks,
		Timeout:       2 * time.Second,
		RetryMax:      0,
		MaxConcurrent: limit,
	})

	outcomes, err := c.FetchRange(context.Background(), testRange(t))
	require.NoError(t, err)
	require.Len(t, outcomes, 7)
	for _, out := range outcomes {
		assert.NoError(t, out.Err)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(limit))
}

func TestFetchRange_PerBankFailureIsIsolated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("bankid") == "014" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"datareturn":[{"f1":"T","f7":"100"}]}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, []Bank{{Code: "006", Name: "KTB"}, {Code: "014", Name: "SCB"}})
	outcomes, err := c.FetchRange(context.Background(), testRange(t))
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.NoError(t, outcomes[0].Err)
	assert.Error(t, outcomes[1].Err)
}
