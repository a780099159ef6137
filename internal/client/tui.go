package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"

	"sessionkeys/internal/constants"
	"sessionkeys/internal/types"
	"sessionkeys/internal/utils"
)

const (
	ColorReset  = constants.ColorReset
	ColorBold   = constants.ColorBold
	ColorDim    = constants.ColorDim
	ColorCyan   = constants.ColorCyan
	ColorGreen  = constants.ColorGreen
	ColorYellow = constants.ColorYellow
	ColorRed    = constants.ColorRed
	ColorPurple = constants.ColorPurple
)

func PrintBanner() {
	fmt.Println()
	fmt.Printf("  %s%s%s%s %sv%s%s\n", constants.ColorBold, constants.ColorCyan, constants.AppName, constants.ColorReset, constants.ColorBold, constants.Version, constants.ColorReset)
	fmt.Printf("  %sSession keys on %s%s\n", constants.ColorDim, constants.ChainName, constants.ColorReset)
	fmt.Println()
}

func PrintHint(text string) {
	fmt.Printf("  %s%s%s\n", ColorDim, text, ColorReset)
}

func PrintStep(text string) {
	fmt.Printf("  %s%s▸%s %s\n", ColorBold, ColorCyan, ColorReset, text)
}

func PrintField(label, value, valueColor string) {
	fmt.Printf("  %s%-12s%s %s%s%s\n", ColorDim, label, ColorReset, valueColor, value, ColorReset)
}

func PrintSep() {
	fmt.Printf("  %s%s%s\n", ColorDim, strings.Repeat("─", 50), ColorReset)
}

func PrintError(err error) {
	fmt.Printf("\n  %s%s%s\n\n", ColorRed, err.Error(), ColorReset)
}

// stateColor picks the indicator color for a lifecycle state.
func stateColor(state string) string {
	switch state {
	case "active":
		return ColorGreen
	case "creating":
		return ColorYellow
	case "expired", "revoked":
		return ColorRed
	}
	return ColorDim
}

func PrintSession(s *types.SessionResponse) {
	PrintField("account", s.Account, ColorReset)
	PrintField("state", "● "+s.State, stateColor(s.State))
	if s.Signer == "" {
		return
	}
	PrintField("signer", s.Signer, ColorCyan)
	PrintField("session", utils.ShortHash(s.SessionHash), ColorReset)
	if s.ExpiresAt != nil {
		PrintField("expires", fmt.Sprintf("%s (%s)", s.ExpiresAt.Local().Format(constants.TimeFormatLong), s.ExpiresIn), ColorReset)
	}
	if len(s.Capabilities) > 0 {
		PrintField("can", strings.Join(s.Capabilities, ", "), ColorPurple)
	}
	if s.ExplorerURL != "" {
		PrintField("created in", s.ExplorerURL, ColorDim)
	}
}

// PrintTransaction shows the hash, the explorer link and a QR code of the
// link for opening it on a phone.
func PrintTransaction(tx *types.TransactionResponse) {
	PrintField("tx", tx.TransactionHash, ColorCyan)
	PrintField("explorer", tx.ExplorerURL, ColorYellow)
	if qr := renderQR(tx.ExplorerURL); qr != "" {
		fmt.Println()
		for _, line := range strings.Split(strings.TrimRight(qr, "\n"), "\n") {
			fmt.Printf("  %s\n", line)
		}
	}
}

func renderQR(content string) string {
	if content == "" {
		return ""
	}
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return ""
	}
	return qr.ToSmallString(false)
}

func PrintBalance(b *types.BalanceResponse) {
	PrintField("account", b.Account, ColorReset)
	PrintField("balance", b.Formatted+" "+b.Symbol, ColorGreen)
	PrintField("raw", b.Raw, ColorDim)
	PrintField("explorer", b.ExplorerURL, ColorDim)
}

func PrintReceipt(r *types.ReceiptResponse) {
	color := ColorYellow
	switch r.Status {
	case "success":
		color = ColorGreen
	case "reverted":
		color = ColorRed
	}
	PrintField("tx", r.TransactionHash, ColorCyan)
	PrintField("status", "● "+r.Status, color)
	if r.BlockNumber > 0 {
		PrintField("block", fmt.Sprintf("%d", r.BlockNumber), ColorReset)
		PrintField("gas used", fmt.Sprintf("%d", r.GasUsed), ColorReset)
	}
	PrintField("explorer", r.ExplorerURL, ColorDim)
}

// FormatEvent renders one lifecycle event as a log line.
func FormatEvent(ev types.ChangeEvent) string {
	line := fmt.Sprintf("%s%s%s %s%-13s%s %s %s",
		ColorDim, ev.Timestamp.Local().Format(constants.TimeFormatShort), ColorReset,
		stateColor(ev.State), ev.Transition, ColorReset,
		utils.ShortHash(ev.Account), ev.State)
	if ev.Signer != "" {
		line += " signer " + utils.ShortHash(ev.Signer)
	}
	if ev.TransactionHash != "" {
		line += " tx " + utils.ShortHash(ev.TransactionHash)
	}
	if ev.Error != "" {
		line += " " + ColorRed + ev.Error + ColorReset
	}
	return line
}

// RenderWatch redraws the live watch screen in place.
func RenderWatch(server string, account string, connectedAt time.Time, logs []string) {
	fmt.Print("\033[H")

	fmt.Printf("  %s%s%s%s %sv%s%s\n", constants.ColorBold, constants.ColorCyan, constants.AppName, constants.ColorReset, constants.ColorBold, constants.Version, constants.ColorReset)
	fmt.Printf("  %sLifecycle events%s\n", constants.ColorDim, constants.ColorReset)
	fmt.Println()

	PrintField("server", server, ColorCyan)
	if account == "" {
		account = "all accounts"
	}
	PrintField("account", account, ColorReset)
	PrintField("since", connectedAt.Format(constants.TimeFormatShort), ColorDim)

	fmt.Println()
	fmt.Printf("  %s%s%s\n", ColorDim, strings.Repeat("─", 50), ColorReset)

	for _, log := range logs {
		fmt.Printf("\033[K  %s\n", log)
	}

	fmt.Print("\033[J")
}
