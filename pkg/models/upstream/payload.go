package upstream

import "encoding/json"

// Payload is the bank API response for one bank and date range.
//
// The feed is record-oriented: each element of `datareturn` carries a record
// type in f1. "D" rows are individual transfers (f2 holds the transfer time),
// the single "T" trailer row holds the running total for the range in f7,
// expressed in satang. The optional top-level status field is the upstream's
// own health indicator.
type Payload struct {
	DataReturn []Row  `json:"datareturn"`
	Status     string `json:"status,omitempty"`
}

type Row struct {
	F1 string      `json:"f1"`
	F2 string      `json:"f2"`
	F7 json.Number `json:"f7"`
}

const (
	RowDetail  = "D"
	RowTrailer = "T"
)

const StatusOK = "ok"

func (p *Payload) Details() []Row {
	var out []Row
	for _, r := range p.DataReturn {
		if r.F1 == RowDetail {
			out = append(out, r)
		}
	}
	return out
}

func (p *Payload) Trailer() (Row, bool) {
	for _, r := range p.DataReturn {
		if r.F1 == RowTrailer {
			return r, true
		}
	}
	return Row{}, false
}
