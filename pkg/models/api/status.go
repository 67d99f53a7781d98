package api

import "time"

// Status is the ops server's view of the relay.
type Status struct {
	LastRunAt    *time.Time `json:"last_run_at,omitempty"`
	LastRunOK    bool       `json:"last_run_ok"`
	LastRunError string     `json:"last_run_error,omitempty"`
	CacheEntries int        `json:"cache_entries"`
	LedgerSize   int        `json:"ledger_size"`
}
