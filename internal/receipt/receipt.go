// Package receipt renders committed sales as plain text and hands the text to
// a durable sink.
package receipt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"medshelf/backend/internal/domain"
)

const (
	width     = 44
	nameWidth = 20
)

// Render produces the line-oriented receipt for a sale. Amounts are rounded
// to two decimals here only; the sale keeps full precision.
func Render(owner domain.Owner, sale domain.SaleTransaction, lines []domain.LineItem) string {
	var b strings.Builder
	rule := strings.Repeat("-", width)

	writeLine(&b, center(owner.PharmacyName))
	if addr := strings.TrimSpace(owner.Address); addr != "" {
		writeLine(&b, center(addr))
	}
	if owner.LicenseNumber != "" {
		writeLine(&b, center("License "+owner.LicenseNumber))
	}
	if owner.Phone != "" {
		writeLine(&b, center("Tel "+owner.Phone))
	}
	writeLine(&b, rule)
	writeLine(&b, "Receipt:  "+sale.ID)
	writeLine(&b, "Date:     "+sale.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
	customer := strings.TrimSpace(sale.CustomerName)
	if customer == "" {
		customer = "Walk-in"
	}
	if phone := strings.TrimSpace(sale.CustomerPhone); phone != "" {
		customer = fmt.Sprintf("%s (%s)", customer, phone)
	}
	writeLine(&b, "Customer: "+customer)
	writeLine(&b, rule)
	writeLine(&b, fmt.Sprintf("%-*s %5s %8s %8s", nameWidth, "Item", "Qty", "Rate", "Amount"))
	for _, line := range lines {
		writeLine(&b, fmt.Sprintf("%-*s %5d %8s %8s",
			nameWidth, truncate(line.Name, nameWidth),
			line.Quantity,
			line.Rate.Decimal.StringFixed(2),
			line.Revenue().StringFixed(2),
		))
	}
	writeLine(&b, rule)
	writeLine(&b, fmt.Sprintf("%-*s %*s", nameWidth, "TOTAL", width-nameWidth-1, sale.TotalRevenue.StringFixed(2)))
	writeLine(&b, rule)
	writeLine(&b, center("Thank you. Get well soon."))

	return Normalize(b.String())
}

// FileName is the sink object name for a sale receipt.
func FileName(sale domain.SaleTransaction) string {
	return fmt.Sprintf("receipt_%s_%s.txt", sale.ID, sale.CreatedAt.UTC().Format("20060102_150405"))
}

// Normalize converts line endings to \n and guarantees one trailing newline.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimRight(text, "\n") + "\n"
}

func writeLine(b *strings.Builder, s string) {
	b.WriteString(s)
	b.WriteByte('\n')
}

func center(s string) string {
	s = strings.TrimSpace(s)
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return strings.Repeat(" ", (width-n)/2) + s
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "~"
}

