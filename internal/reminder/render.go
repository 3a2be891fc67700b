package reminder

import (
	"fmt"

	"github.com/renewd/renewd/internal/db"
)

// expiryDateFormat is the fixed human-readable pattern used in message
// bodies, e.g. 10-Jun-2025. Not locale-sensitive.
const expiryDateFormat = "02-Jan-2006"

// RenderMessage builds the reminder body for one policy and milestone.
// It is pure: no I/O, no failure modes. Fields are interpolated as-is;
// an incomplete snapshot still renders rather than failing the
// pipeline. Length limits are the sender's problem, not the renderer's.
func RenderMessage(p db.PolicySnapshot, m Milestone) string {
	formattedDate := p.ExpiryDate.Format(expiryDateFormat)

	if m.Urgent {
		return fmt.Sprintf(
			"URGENT: Dear %s, your %s policy (%s) expires in %d days on %s! "+
				"Premium: ₹%s. Renew immediately to maintain continuous coverage. "+
				"Call your agent today.",
			p.ClientName, p.PolicyType, p.PolicyNumber, m.LeadDays, formattedDate, p.Premium,
		)
	}

	return fmt.Sprintf(
		"Dear %s, your %s policy (%s) is expiring in %d days on %s. "+
			"Premium: ₹%s. Please renew soon to avoid coverage lapse. "+
			"Contact your agent for assistance.",
		p.ClientName, p.PolicyType, p.PolicyNumber, m.LeadDays, formattedDate, p.Premium,
	)
}
