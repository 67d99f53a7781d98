package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/pay-tools/tx-relay/pkg/models/domain"
)

// Message is a platform-neutral rich message. The chat adapter maps it onto
// whatever embed format the platform speaks.
type Message struct {
	Title     string
	Body      string
	Color     int
	Fields    []Field
	Footer    string
	Timestamp time.Time
}

type Field struct {
	Name  string
	Value string
}

const (
	ColorActive  = 0x2ecc71
	ColorIdle    = 0x95a5a6
	ColorFailure = 0xe74c3c
	ColorPanel   = 0x2b2d31
)

// Report renders an aggregated result: active banks first, then connection
// problems, then banks with no activity, then grand totals.
func Report(result domain.ReportResult, scheduled bool) Message {
	title := fmt.Sprintf("API Connectivity Report (%s)", result.Query.Range)
	if scheduled {
		title = fmt.Sprintf("Daily API Report (%s)", result.Query.Range)
	}

	msg := Message{
		Title:     title,
		Color:     ColorIdle,
		Timestamp: result.FetchedAt,
	}
	if result.TransactionCount > 0 {
		msg.Color = ColorActive
	}

	var active, failed, idle []string
	for _, bank := range result.Banks {
		switch {
		case bank.Failed():
			failed = append(failed, fmt.Sprintf("- %s: %s", bank.BankName, bank.FailReason))
		case bank.Active():
			active = append(active, fmt.Sprintf(
				"%s  last %s\n  %d transfers, %s THB",
				bank.BankName, bank.LastTxTime, bank.TxCount, bank.Volume.StringFixed(2),
			))
		default:
			idle = append(idle, bank.BankName)
		}
	}

	if len(active) > 0 {
		msg.Fields = append(msg.Fields, Field{Name: "Active", Value: strings.Join(active, "\n\n")})
	}
	if len(failed) > 0 {
		msg.Fields = append(msg.Fields, Field{Name: "Connection problems", Value: strings.Join(failed, "\n")})
	}
	if len(idle) > 0 {
		msg.Fields = append(msg.Fields, Field{Name: "No activity", Value: strings.Join(idle, ", ")})
	}

	msg.Fields = append(msg.Fields, Field{
		Name: "Totals",
		Value: fmt.Sprintf("%d transfers, %s THB (%s)",
			result.TransactionCount, result.TotalVolume.StringFixed(2), result.Status),
	})

	if result.Query.RequestedBy != "" {
		msg.Footer = fmt.Sprintf("Requested by %s", result.Query.RequestedBy)
	}
	return msg
}

// FailureNotice is posted instead of a report when the upstream is
// unreachable, so a silent gap never masks an outage.
func FailureNotice(r domain.DateRange, err error) Message {
	return Message{
		Title:     fmt.Sprintf("Report unavailable (%s)", r),
		Body:      fmt.Sprintf("The upstream API could not be reached: %v", err),
		Color:     ColorFailure,
		Timestamp: time.Now(),
	}
}

// Panel is the interactive control panel message.
func Panel() Message {
	return Message{
		Title: "Control Panel",
		Body:  "Pick a day to check API transfer activity.",
		Color: ColorPanel,
	}
}
