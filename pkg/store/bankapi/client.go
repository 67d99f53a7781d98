package bankapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/pay-tools/tx-relay/pkg/models/domain"
	"github.com/pay-tools/tx-relay/pkg/models/upstream"
)

var (
	ErrTimeout    = errors.New("upstream request timed out")
	ErrConnection = errors.New("upstream connection failed")
)

// HTTPError is a non-200 upstream answer. 4xx responses are permanent for the
// query and are never retried; 5xx are retried like connection failures.
type HTTPError struct {
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d", e.Status)
}

type Bank struct {
	Code string
	Name string
}

// Outcome is the result of fetching one bank for a range. Err is set when the
// call failed after retries; Payload is then nil.
type Outcome struct {
	Bank    Bank
	Payload *upstream.Payload
	Latency time.Duration
	Err     error
}

type Client interface {
	// FetchRange queries every configured bank for the given range
	// concurrently. A per-bank failure is reported in its Outcome; the only
	// error returned is context cancellation.
	FetchRange(ctx context.Context, r domain.DateRange) ([]Outcome, error)
}

type Settings struct {
	BaseURL       string
	Banks         []Bank
	Timeout       time.Duration
	RetryMax      int
	MaxConcurrent int
}

type client struct {
	settings Settings
	http     *retryablehttp.Client
	sem      *semaphore.Weighted
}

func NewClient(settings Settings) Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = settings.RetryMax
	rc.RetryWaitMin = 250 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	rc.HTTPClient.Timeout = settings.Timeout

	concurrent := settings.MaxConcurrent
	if concurrent < 1 {
		concurrent = 1
	}

	return &client{
		settings: settings,
		http:     rc,
		sem:      semaphore.NewWeighted(int64(concurrent)),
	}
}

func (c *client) FetchRange(ctx context.Context, r domain.DateRange) ([]Outcome, error) {
	outcomes := make([]Outcome, len(c.settings.Banks))

	var wg sync.WaitGroup
	for i, bank := range c.settings.Banks {
		wg.Add(1)
		go func(i int, bank Bank) {
			defer wg.Done()
			outcomes[i] = c.fetchBank(ctx, bank, r)
		}(i, bank)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (c *client) fetchBank(ctx context.Context, bank Bank, r domain.DateRange) Outcome {
	out := Outcome{Bank: bank}

	// At most MaxConcurrent banks are in flight at once, including their
	// retry loops.
	if err := c.sem.Acquire(ctx, 1); err != nil {
		out.Err = err
		return out
	}
	defer c.sem.Release(1)

	reqURL, err := c.buildURL(bank, r)
	if err != nil {
		out.Err = err
		return out
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		out.Err = err
		return out
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	out.Latency = time.Since(started)
	if err != nil {
		out.Err = classify(err)
		zerolog.Ctx(ctx).Warn().
			Err(out.Err).
			Str("bank", bank.Name).
			Msg("upstream fetch failed")
		return out
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		out.Err = &HTTPError{Status: resp.StatusCode}
		return out
	}

	var payload upstream.Payload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		out.Err = fmt.Errorf("failed to decode upstream payload: %w", err)
		return out
	}

	out.Payload = &payload
	return out
}

func (c *client) buildURL(bank Bank, r domain.DateRange) (string, error) {
	u, err := url.Parse(c.settings.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("bankid", bank.Code)
	q.Set("datestart", r.Start.Format("2006-01-02")+" 00:00:00")
	q.Set("dateend", r.End.Format("2006-01-02")+" 23:59:59")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// classify maps transport errors onto the client's taxonomy. retryablehttp
// has already exhausted the retry budget by the time we see one of these.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}
