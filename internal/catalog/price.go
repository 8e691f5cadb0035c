package catalog

import (
	"fmt"
	"strings"
)

// zeroDecimal lists currencies whose smallest unit is the whole unit.
var zeroDecimal = map[string]bool{
	"jpy": true,
	"krw": true,
	"vnd": true,
}

var symbols = map[string]string{
	"jpy": "¥",
	"usd": "$",
	"eur": "€",
	"gbp": "£",
}

// FormatPrice renders an amount in the smallest currency unit as a
// display string, e.g. 1500 → "¥1,500" (jpy) or "$15.00" (usd).
func FormatPrice(amount int, currency string) string {
	currency = strings.ToLower(currency)
	symbol, ok := symbols[currency]
	if !ok {
		symbol = strings.ToUpper(currency) + " "
	}

	if zeroDecimal[currency] {
		return symbol + groupThousands(amount)
	}
	return fmt.Sprintf("%s%s.%02d", symbol, groupThousands(amount/100), amount%100)
}

func groupThousands(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
