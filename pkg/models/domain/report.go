package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type APIStatus string

const (
	StatusHealthy     APIStatus = "healthy"
	StatusDegraded    APIStatus = "degraded"
	StatusUnreachable APIStatus = "unreachable"
)

// ReportQuery identifies one report request.
type ReportQuery struct {
	Range       DateRange
	RequestedBy string
}

// BankReport is the per-bank slice of a report. FailReason is set when the
// upstream call for this bank failed; the remaining fields are then zero.
type BankReport struct {
	BankCode   string
	BankName   string
	TxCount    int
	Volume     decimal.Decimal
	LastTxTime string
	FailReason string
}

func (b BankReport) Failed() bool {
	return b.FailReason != ""
}

func (b BankReport) Active() bool {
	return !b.Failed() && b.TxCount > 0
}

// ReportResult is an immutable aggregation outcome. Cached copies keep their
// original FetchedAt; a cache hit is never silently refreshed.
type ReportResult struct {
	Query            ReportQuery
	Banks            []BankReport
	TransactionCount int
	TotalVolume      decimal.Decimal
	Status           APIStatus
	FetchedAt        time.Time
}
