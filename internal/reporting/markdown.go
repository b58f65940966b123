package reporting

import (
	"fmt"
	"strings"
	"time"

	"alpha-custody/internal/orchestrator"
)

// RenderMarkdown renders a run result as a Markdown document.
func RenderMarkdown(r *orchestrator.RunResult, generatedAt time.Time) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Custody Run Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", generatedAt.UTC().Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Run: `%s` | Netuid: %d | Target hotkey: `%s`\n\n", r.RunID, r.Netuid, r.TargetHotkey))

	// Wallets
	sb.WriteString("## Wallets\n\n")
	if len(r.Outcomes) == 0 {
		sb.WriteString("No wallets processed.\n\n")
	} else {
		sb.WriteString("| Wallet | State | Transferred | Delegated | Holding Under Target | Error |\n")
		sb.WriteString("|--------|-------|-------------|-----------|----------------------|-------|\n")
		for _, row := range Rows(r) {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s |\n",
				row.Wallet, row.State, row.Transferred, row.Delegated, row.HoldingUnderTarget,
				escapePipes(row.Error)))
		}
		sb.WriteString("\n")
	}

	// Totals
	sb.WriteString("## Holding Wallet\n\n")
	sb.WriteString(fmt.Sprintf("Stake under target: **%s**\n\n", r.HoldingUnderTarget))

	// Errors
	if len(r.Errors) > 0 {
		sb.WriteString("## Errors\n\n")
		for _, err := range r.Errors {
			sb.WriteString(fmt.Sprintf("- %s\n", err))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
