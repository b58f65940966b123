package reporting

import (
	"fmt"
	"strings"

	"alpha-custody/internal/orchestrator"
)

// RenderCSV renders one line per wallet with raw rao amounts.
func RenderCSV(r *orchestrator.RunResult) string {
	var sb strings.Builder

	// Header
	sb.WriteString("run_id,netuid,wallet,state,transferred_rao,delegated,holding_under_target_rao,failed\n")

	// Rows
	for _, o := range r.Outcomes {
		sb.WriteString(fmt.Sprintf("%s,%d,%s,%s,%d,%t,%d,%t\n",
			r.RunID,
			r.Netuid,
			o.Wallet,
			o.State,
			o.Transferred.Rao,
			o.Delegated,
			o.HoldingUnderTarget.Rao,
			o.Failed(),
		))
	}

	return sb.String()
}
