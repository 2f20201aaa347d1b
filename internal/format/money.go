// Package format renders amounts for people.
package format

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Money renders amount in the given ISO 4217 currency, e.g. "USD 1,344.00".
// Unknown codes fall back to "<amount> <code>".
func Money(amount decimal.Decimal, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return amount.StringFixed(2) + " " + code
	}
	scale, _ := currency.Standard.Rounding(unit)
	value := amount.Round(int32(scale)).InexactFloat64()
	return printer.Sprint(currency.Symbol(unit.Amount(value)))
}
