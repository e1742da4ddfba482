package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// NumFunds is the number of tracked funds.
const NumFunds = 4

// FundCodes lists the tracked funds in vector order.
var FundCodes = [NumFunds]string{"MMF", "BOND", "EQUITY", "REIT"}

// FundIndex returns the vector position of a fund code.
func FundIndex(code string) (int, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for i, c := range FundCodes {
		if c == code {
			return i, true
		}
	}
	return 0, false
}

// FundAmounts is a fixed-size per-fund amount vector.
type FundAmounts [NumFunds]decimal.Decimal

// Add returns the component-wise sum.
func (f FundAmounts) Add(o FundAmounts) FundAmounts {
	var out FundAmounts
	for i := range f {
		out[i] = f[i].Add(o[i])
	}
	return out
}

// Total sums all components.
func (f FundAmounts) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, v := range f {
		sum = sum.Add(v)
	}
	return sum
}

// Get returns the amount for a fund code, zero for unknown codes.
func (f FundAmounts) Get(code string) decimal.Decimal {
	if i, ok := FundIndex(code); ok {
		return f[i]
	}
	return decimal.Zero
}

// MarshalJSON renders the vector as an object keyed by fund code.
func (f FundAmounts) MarshalJSON() ([]byte, error) {
	m := make(map[string]decimal.Decimal, NumFunds)
	for i, code := range FundCodes {
		m[code] = f[i]
	}
	return json.Marshal(m)
}

// UnmarshalJSON accepts the object form produced by MarshalJSON.
func (f *FundAmounts) UnmarshalJSON(data []byte) error {
	var m map[string]decimal.Decimal
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	var out FundAmounts
	for code, v := range m {
		i, ok := FundIndex(code)
		if !ok {
			return fmt.Errorf("unknown fund code %q", code)
		}
		out[i] = v
	}
	*f = out
	return nil
}

// GoalTransactionCode derives the key that groups ledger postings into one
// goal transaction.
func GoalTransactionCode(date civil.Date, accountNumber, goalNumber string) string {
	return fmt.Sprintf("%s/%s/%s", date.String(), accountNumber, goalNumber)
}
