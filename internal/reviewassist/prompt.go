package reviewassist

import (
	"fmt"
	"strings"

	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/dvloznov/goal-reconciliation/internal/service"
)

// BuildPrompt describes the item under review and the rest of the goal's
// unmatched items, and asks for a JSON object with a tag and a note.
func BuildPrompt(vt *service.VarianceTransactions, target Target) string {
	var b strings.Builder

	b.WriteString("You assist an operations analyst reconciling an investment goal's bank transactions against its internal ledger.\n\n")
	fmt.Fprintf(&b, "Goal: %s\n", vt.GoalID)
	fmt.Fprintf(&b, "Period: %s to %s\n", boundOf(vt.Range.From.String(), vt.Range.From.IsValid()), boundOf(vt.Range.To.String(), vt.Range.To.IsValid()))
	fmt.Fprintf(&b, "Current review status: %s\n\n", vt.Status)

	b.WriteString("Item to explain:\n")
	for _, line := range targetLines(vt, target) {
		b.WriteString("  " + line + "\n")
	}

	b.WriteString("\nOther unmatched bank transactions:\n")
	n := 0
	for _, t := range vt.UnmatchedBank {
		if target.BankTransactionID == t.ID {
			continue
		}
		b.WriteString("  " + bankLine(t) + "\n")
		n++
	}
	if n == 0 {
		b.WriteString("  (none)\n")
	}

	b.WriteString("\nOther unmatched ledger transactions:\n")
	n = 0
	for _, g := range vt.UnmatchedGoal {
		if target.GoalTransactionCode == g.Code {
			continue
		}
		b.WriteString("  " + goalLine(g) + "\n")
		n++
	}
	if n == 0 {
		b.WriteString("  (none)\n")
	}

	b.WriteString("\nChoose the review tag that best explains why the item has no counterpart. Allowed tags:\n")
	for _, tag := range domain.ReviewerTags() {
		b.WriteString("  - " + string(tag) + "\n")
	}

	b.WriteString("\nRules:\n" +
		"- Output STRICT JSON only: {\"tag\": \"<one allowed tag>\", \"note\": \"<one or two sentences>\"}.\n" +
		"- Mention the specific counterpart you suspect when there is one.\n" +
		"- Do NOT wrap the response in code fences.\n")

	return b.String()
}

func targetLines(vt *service.VarianceTransactions, target Target) []string {
	for _, t := range vt.UnmatchedBank {
		if t.ID == target.BankTransactionID {
			return []string{"side: bank", bankLine(t)}
		}
	}
	for _, g := range vt.UnmatchedGoal {
		if g.Code == target.GoalTransactionCode {
			return []string{"side: ledger", goalLine(g)}
		}
	}
	return nil
}

func bankLine(t domain.BankTransaction) string {
	return fmt.Sprintf("bank %s: %s %s on %s ext=%s%s", t.ID, t.TransactionType, t.TotalAmount.StringFixed(2), t.TransactionDate, orDash(t.ExternalTransactionID), tagSuffix(t.Review))
}

func goalLine(g domain.GoalTransaction) string {
	return fmt.Sprintf("ledger %s: %s %s on %s ext=%s%s", g.Code, g.TransactionType, g.TotalAmount.StringFixed(2), g.TransactionDate, orDash(g.ExternalTransactionID), tagSuffix(g.Review))
}

func tagSuffix(r domain.Review) string {
	if !r.Tagged() {
		return ""
	}
	return " (already tagged " + string(r.Tag) + ")"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func boundOf(s string, ok bool) string {
	if !ok {
		return "open"
	}
	return s
}
