// Package reporting renders run results for operators.
package reporting

import (
	"errors"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"alpha-custody/internal/orchestrator"
)

// SummaryRow is one wallet line of a run summary.
type SummaryRow struct {
	Wallet             string
	State              string
	Transferred        string
	Delegated          string
	HoldingUnderTarget string
	Error              string
}

// Rows flattens a run result into one row per wallet, in processing order.
func Rows(r *orchestrator.RunResult) []SummaryRow {
	rows := make([]SummaryRow, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		row := SummaryRow{
			Wallet:      o.Wallet,
			State:       string(o.State),
			Transferred: o.Transferred.String(),
			Delegated:   yesNo(o.Delegated),
			Error:       firstError(o),
		}
		if o.ReportErr == nil {
			row.HoldingUnderTarget = o.HoldingUnderTarget.String()
		} else {
			row.HoldingUnderTarget = "unknown"
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteSummary renders the per-wallet table followed by the totals line.
func WriteSummary(w io.Writer, r *orchestrator.RunResult) error {
	table := tablewriter.NewWriter(w)
	table.Header("Wallet", "State", "Transferred", "Delegated", "Holding Under Target", "Error")

	for _, row := range Rows(r) {
		if err := table.Append(row.Wallet, row.State, row.Transferred, row.Delegated, row.HoldingUnderTarget, row.Error); err != nil {
			return fmt.Errorf("append row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render summary: %w", err)
	}

	_, err := fmt.Fprintf(w, "run %s: netuid %d, target %s, holding stake under target %s, %d error(s)\n",
		r.RunID, r.Netuid, r.TargetHotkey, r.HoldingUnderTarget, len(r.Errors))
	return err
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// firstError returns the first failing step of a wallet, if any.
func firstError(o orchestrator.WalletOutcome) string {
	switch {
	case o.TransferErr != nil:
		return "transfer: " + o.TransferErr.Error()
	case o.DelegateErr != nil:
		return "delegate: " + o.DelegateErr.Error()
	case !o.Delegated:
		return "delegate: " + errMovesRejected.Error()
	case o.ReportErr != nil:
		return "report: " + o.ReportErr.Error()
	}
	return ""
}

var errMovesRejected = errors.New("one or more moves were rejected")
