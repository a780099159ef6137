package utils

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"sessionkeys/internal/constants"
)

func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "expired"
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60

	if hours == 0 {
		return fmt.Sprintf("%d minutes", minutes)
	}
	if minutes == 0 {
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	if hours == 1 {
		return fmt.Sprintf("1 hour %d minutes", minutes)
	}
	return fmt.Sprintf("%d hours %d minutes", hours, minutes)
}

// FormatUnits renders value / 10^decimals without losing precision.
// Trailing fractional zeros are dropped: 10e18 with 18 decimals is "10".
func FormatUnits(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	neg := value.Sign() < 0
	digits := new(big.Int).Abs(value).String()

	d := int(decimals)
	if len(digits) <= d {
		digits = strings.Repeat("0", d-len(digits)+1) + digits
	}
	whole := digits[:len(digits)-d]
	frac := strings.TrimRight(digits[len(digits)-d:], "0")

	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

// ShortHash abbreviates a hex hash the way explorers do: 0x123456...abcdef
func ShortHash(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:8] + "..." + hash[len(hash)-6:]
}

// FormatLog returns a standardized log string for the application.
// If emoji is empty, it is automatically selected based on the status code.
func FormatLog(emoji string, method string, statusCode int, path string) string {
	if emoji == "" {
		switch {
		case statusCode >= 200 && statusCode < 300:
			emoji = "✅"
		case statusCode >= 400:
			emoji = "❌"
		case statusCode >= 300:
			emoji = "🔄"
		default:
			emoji = "📥"
		}
	}

	return fmt.Sprintf("  %s %s%s %d %s%s\n",
		emoji,
		constants.ColorDim,
		method,
		statusCode,
		path,
		constants.ColorReset,
	)
}
