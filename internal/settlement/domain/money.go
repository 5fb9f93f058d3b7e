package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// VATRate is the Danish VAT rate applied to every subtotal.
var VATRate = decimal.New(25, -2)

// AmountDecimals is the number of decimals line amounts are rounded to.
const AmountDecimals = 2

// RoundAmount rounds a monetary value to AmountDecimals using banker's rounding.
func RoundAmount(value decimal.Decimal) decimal.Decimal {
	return value.RoundBank(AmountDecimals)
}

// VATFor returns the rounded VAT for a subtotal.
func VATFor(subtotal decimal.Decimal) decimal.Decimal {
	return RoundAmount(subtotal.Mul(VATRate))
}

// HourNumber maps a timestamp to the tariff hour number, 00:00-00:59 being hour 1.
// The hour is read in the timestamp's own location.
func HourNumber(ts time.Time) int {
	return ts.Hour() + 1
}

// DaysInPeriod returns the number of calendar days in [start, end).
func DaysInPeriod(start, end time.Time) int {
	s := truncateToDay(start)
	e := truncateToDay(end.In(start.Location()))
	days := 0
	for d := s; d.Before(e); d = d.AddDate(0, 0, 1) {
		days++
	}
	return days
}

// DaysInMonth returns the number of days in the calendar month containing t.
func DaysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

// ProRataFactor scales a monthly fee to a period. The denominator is the length of
// the calendar month containing start, whatever the period's own length.
func ProRataFactor(start, end time.Time) decimal.Decimal {
	days := DaysInPeriod(start, end)
	if days <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(days)).Div(decimal.NewFromInt(int64(DaysInMonth(start))))
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func sumAmounts(lines []SettlementLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Amount)
	}
	return total
}
