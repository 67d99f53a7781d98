package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/pay-tools/tx-relay/pkg/models/domain"
	"github.com/pay-tools/tx-relay/pkg/models/upstream"
	"github.com/pay-tools/tx-relay/pkg/store/bankapi"
)

var (
	// ErrInvalidRange rejects a query before any cache or network access.
	ErrInvalidRange = errors.New("invalid date range")
	// ErrUpstreamUnavailable is the only aggregation failure callers must
	// handle; it means every bank fetch failed after retries.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

type Aggregator interface {
	GetReport(ctx context.Context, query domain.ReportQuery) (domain.ReportResult, error)
}

type Settings struct {
	MaxSpanDays int
	// DegradedLatency marks a successful but slow bank fetch as degraded.
	// The upstream's own status field wins when present.
	DegradedLatency time.Duration
}

type aggregator struct {
	client   bankapi.Client
	cache    Cache
	settings Settings
}

func NewAggregator(client bankapi.Client, cache Cache, settings Settings) Aggregator {
	return &aggregator{
		client:   client,
		cache:    cache,
		settings: settings,
	}
}

func (a *aggregator) GetReport(ctx context.Context, query domain.ReportQuery) (domain.ReportResult, error) {
	if !query.Range.Valid() {
		return domain.ReportResult{}, fmt.Errorf("%w: start is after end", ErrInvalidRange)
	}
	if days := query.Range.Days(); days > a.settings.MaxSpanDays {
		return domain.ReportResult{},
			fmt.Errorf("%w: %d days exceeds the maximum of %d", ErrInvalidRange, days, a.settings.MaxSpanDays)
	}

	fingerprint := query.Range.Fingerprint()
	if cached, ok := a.cache.Get(fingerprint); ok {
		zerolog.Ctx(ctx).Debug().
			Str("fingerprint", fingerprint).
			Time("fetched_at", cached.FetchedAt).
			Msg("report served from cache")
		cached.Query.RequestedBy = query.RequestedBy
		return cached, nil
	}

	outcomes, err := a.client.FetchRange(ctx, query.Range)
	if err != nil {
		return domain.ReportResult{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	result, err := a.normalize(ctx, query, outcomes)
	if err != nil {
		return domain.ReportResult{}, err
	}

	a.cache.Put(fingerprint, result)
	return result, nil
}

func (a *aggregator) normalize(
	ctx context.Context,
	query domain.ReportQuery,
	outcomes []bankapi.Outcome,
) (domain.ReportResult, error) {
	logger := zerolog.Ctx(ctx)

	banks := make([]domain.BankReport, 0, len(outcomes))
	total := decimal.Zero
	txCount := 0
	failed := 0
	degraded := false

	for _, out := range outcomes {
		bank := domain.BankReport{
			BankCode: out.Bank.Code,
			BankName: out.Bank.Name,
			Volume:   decimal.Zero,
		}

		if out.Err != nil {
			failed++
			bank.FailReason = failReason(out.Err)
			banks = append(banks, bank)
			continue
		}

		details := out.Payload.Details()
		bank.TxCount = len(details)
		bank.LastTxTime = "--:--"
		if len(details) > 0 {
			bank.LastTxTime = formatClock(details[len(details)-1].F2)
		}

		if trailer, ok := out.Payload.Trailer(); ok {
			amount, err := decimal.NewFromString(trailer.F7.String())
			if err != nil {
				logger.Warn().
					Str("bank", out.Bank.Name).
					Str("raw", trailer.F7.String()).
					Msg("invalid trailer amount, assuming zero")
			} else {
				// The trailer carries satang.
				bank.Volume = amount.Shift(-2)
			}
		}

		if out.Payload.Status != "" && out.Payload.Status != upstream.StatusOK {
			degraded = true
		}
		if out.Payload.Status == "" && a.settings.DegradedLatency > 0 && out.Latency > a.settings.DegradedLatency {
			degraded = true
		}

		txCount += bank.TxCount
		total = total.Add(bank.Volume)
		banks = append(banks, bank)
	}

	if len(outcomes) > 0 && failed == len(outcomes) {
		return domain.ReportResult{}, fmt.Errorf("%w: all %d banks failed", ErrUpstreamUnavailable, failed)
	}

	status := domain.StatusHealthy
	if failed > 0 || degraded {
		status = domain.StatusDegraded
	}

	return domain.ReportResult{
		Query:            query,
		Banks:            banks,
		TransactionCount: txCount,
		TotalVolume:      total,
		Status:           status,
		FetchedAt:        time.Now(),
	}, nil
}

// formatClock normalizes the feed's transfer-time forms ("HHMMSS" or
// "date HH:MM:SS") to a wall-clock string.
func formatClock(raw string) string {
	switch {
	case raw == "":
		return "--:--"
	case strings.Contains(raw, " "):
		parts := strings.SplitN(raw, " ", 2)
		t := parts[1]
		if len(t) >= 5 {
			return t[:5]
		}
		return t
	case len(raw) == 6 && isDigits(raw):
		return fmt.Sprintf("%s:%s:%s", raw[:2], raw[2:4], raw[4:6])
	default:
		return raw
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func failReason(err error) string {
	switch {
	case errors.Is(err, bankapi.ErrTimeout):
		return "timeout"
	case errors.Is(err, bankapi.ErrConnection):
		return "connection failed"
	default:
		var he *bankapi.HTTPError
		if errors.As(err, &he) {
			return fmt.Sprintf("HTTP %d", he.Status)
		}
		return "error"
	}
}
