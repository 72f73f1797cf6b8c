package billing

import (
	"fmt"
	"math"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/dmitrymomot/creatorpay/pkg/subscription"
)

// FormatMoney renders an amount in minor units with the currency symbol
// and the currency's standard number of decimals, e.g. "$ 9.99".
func FormatMoney(tag language.Tag, m subscription.Money) string {
	unit, err := currency.ParseISO(m.Currency)
	if err != nil {
		return fmt.Sprintf("%d %s", m.Amount, m.Currency)
	}
	scale, _ := currency.Standard.Rounding(unit)
	major := float64(m.Amount) / math.Pow10(scale)
	return message.NewPrinter(tag).Sprint(currency.Symbol(unit.Amount(major)))
}
