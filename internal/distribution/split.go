package distribution

import (
	"sort"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// percentScale is the stored precision of a percentage (numeric(7,4)).
const percentScale = 4

// splitAmount divides amount by percentages that sum to 100 using the
// largest-remainder method, so the parts always add up to amount exactly.
// Ties go to the earlier recipient.
func splitAmount(amount int64, percentages []decimal.Decimal) []int64 {
	parts := make([]int64, len(percentages))
	if amount == 0 || len(percentages) == 0 {
		return parts
	}

	total := decimal.NewFromInt(amount)
	type remainder struct {
		idx  int
		frac decimal.Decimal
	}
	remainders := make([]remainder, len(percentages))
	var assigned int64
	for i, pct := range percentages {
		raw := total.Mul(pct).Div(hundred)
		floor := raw.Floor()
		parts[i] = floor.IntPart()
		assigned += parts[i]
		remainders[i] = remainder{idx: i, frac: raw.Sub(floor)}
	}

	sort.SliceStable(remainders, func(a, b int) bool {
		return remainders[a].frac.GreaterThan(remainders[b].frac)
	})
	for i := 0; assigned < amount; i = (i + 1) % len(remainders) {
		parts[remainders[i].idx]++
		assigned++
	}
	return parts
}

// equalPercentages splits 100 across n recipients at stored precision with
// the rounding residue on the last one.
func equalPercentages(n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	each := hundred.Div(decimal.NewFromInt(int64(n))).Truncate(percentScale)
	out := make([]decimal.Decimal, n)
	sum := decimal.Zero
	for i := 0; i < n-1; i++ {
		out[i] = each
		sum = sum.Add(each)
	}
	out[n-1] = hundred.Sub(sum)
	return out
}

func sumPercentages(values []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum
}
