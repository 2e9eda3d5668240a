package common

import (
	"fmt"
	"strings"
	"time"

	"banker/models"
)

// FormatAmount formats a currency amount with thousand separators
func FormatAmount(amount int64) string {
	if amount < 0 {
		return "-" + FormatAmount(-amount)
	}

	str := fmt.Sprintf("%d", amount)

	n := len(str)
	if n <= 3 {
		return str
	}

	var result strings.Builder
	for i, digit := range str {
		if i > 0 && (n-i)%3 == 0 {
			result.WriteRune(',')
		}
		result.WriteRune(digit)
	}

	return result.String()
}

// FormatLoanStatus returns a user-facing label for a loan status
func FormatLoanStatus(status models.LoanStatus) string {
	switch status {
	case models.LoanStatusPending:
		return "⏳ Pending"
	case models.LoanStatusActive:
		return "🟢 Active"
	case models.LoanStatusOverdue:
		return "🔴 Overdue"
	case models.LoanStatusPaid:
		return "✅ Paid"
	case models.LoanStatusDefaulted:
		return "💀 Defaulted"
	default:
		return string(status)
	}
}

// FormatDiscordTimestamp formats a time as a Discord timestamp that displays in user's local timezone
// Format types: "t" = short time, "T" = long time, "d" = short date, "D" = long date,
// "f" = short date/time, "F" = long date/time, "R" = relative time
func FormatDiscordTimestamp(t time.Time, format string) string {
	return fmt.Sprintf("<t:%d:%s>", t.Unix(), format)
}

// FormatDuration renders a loan term in the largest sensible unit
func FormatDuration(d time.Duration) string {
	switch {
	case d >= 24*time.Hour:
		days := d / (24 * time.Hour)
		rem := d % (24 * time.Hour)
		if rem == 0 {
			return fmt.Sprintf("%dd", days)
		}
		return fmt.Sprintf("%dd%dh", days, rem/time.Hour)
	case d >= time.Hour:
		return fmt.Sprintf("%dh", d/time.Hour)
	default:
		return fmt.Sprintf("%dm", d/time.Minute)
	}
}
