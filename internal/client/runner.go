package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"sessionkeys/internal/constants"
	"sessionkeys/internal/security"
	"sessionkeys/internal/types"
)

// ErrUsage is returned for unknown commands or missing arguments.
var ErrUsage = errors.New(constants.MsgUsage)

// Options tune a Run beyond its command line.
type Options struct {
	// Yes skips the revoke confirmation.
	Yes bool
	// Wait follows a mint until it is mined.
	Wait bool
}

// Run executes one sessionctl command against the server.
func Run(ctx context.Context, c *Client, args []string, opts Options) error {
	if len(args) == 0 {
		return ErrUsage
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "health":
		h, err := c.Health(ctx)
		if err != nil {
			return err
		}
		PrintField("status", h.Status, ColorGreen)
		PrintField("version", h.Version, ColorReset)
		PrintField("chain", fmt.Sprintf("%d", h.ChainID), ColorReset)
		PrintField("store", h.Store, ColorReset)
		return nil

	case "status":
		account, err := accountArg(rest)
		if err != nil {
			return err
		}
		s, err := c.Session(ctx, account)
		if err != nil {
			return err
		}
		PrintSession(s)
		return nil

	case "create":
		account, err := accountArg(rest)
		if err != nil {
			return err
		}
		PrintStep("Creating session key for " + account.Hex())
		PrintHint("The wallet provider registers the key on-chain; this can take a minute.")
		s, err := c.CreateSession(ctx, account)
		if IsStatus(err, http.StatusConflict) {
			PrintHint(ColorYellow + "A session is already active. Revoke it first to replace it." + ColorReset)
		}
		if err != nil {
			return err
		}
		PrintSep()
		PrintSession(s)
		return nil

	case "revoke":
		account, err := accountArg(rest)
		if err != nil {
			return err
		}
		if !opts.Yes && !Confirm(os.Stdin, "Revoke the session key for "+account.Hex()+"?") {
			PrintHint("Cancelled")
			return nil
		}
		if err := c.RevokeSession(ctx, account); err != nil {
			if IsStatus(err, http.StatusBadGateway) {
				PrintHint(ColorYellow + "The local key was discarded, but the on-chain revoke failed." + ColorReset)
			}
			return err
		}
		PrintField("state", "● revoked", ColorRed)
		return nil

	case "logout":
		account, err := accountArg(rest)
		if err != nil {
			return err
		}
		if err := c.Logout(ctx, account); err != nil {
			return err
		}
		PrintHint("Session client discarded; the stored key is kept for next time.")
		return nil

	case "mint":
		return runMint(ctx, c, rest, opts)

	case "balance":
		account, err := accountArg(rest)
		if err != nil {
			return err
		}
		b, err := c.Balance(ctx, account)
		if err != nil {
			return err
		}
		PrintBalance(b)
		return nil

	case "wait":
		if len(rest) == 0 {
			return ErrUsage
		}
		hash, ok := security.ParseTxHash(rest[0])
		if !ok {
			return errors.New(constants.MsgInvalidTxHash)
		}
		return waitAndPrint(ctx, c, hash)

	case "watch":
		var account common.Address
		if len(rest) > 0 {
			var err error
			if account, err = accountArg(rest); err != nil {
				return err
			}
		}
		return StartWatch(ctx, c, account)
	}
	return ErrUsage
}

// runMint handles: mint <account> [amount] [recipient]
func runMint(ctx context.Context, c *Client, args []string, opts Options) error {
	account, err := accountArg(args)
	if err != nil {
		return err
	}
	var req types.MintRequest
	if len(args) > 1 {
		req.Amount = args[1]
	}
	if len(args) > 2 {
		req.Recipient = args[2]
	}

	tx, err := c.Mint(ctx, account, req)
	if IsStatus(err, http.StatusConflict) {
		PrintHint(ColorYellow + "No active session. Run: sessionctl create " + account.Hex() + ColorReset)
	}
	if err != nil {
		return err
	}
	PrintTransaction(tx)

	if !opts.Wait {
		return nil
	}
	fmt.Println()
	return waitAndPrint(ctx, c, common.HexToHash(tx.TransactionHash))
}

func waitAndPrint(ctx context.Context, c *Client, hash common.Hash) error {
	PrintHint("Waiting for " + hash.Hex() + " to be mined...")
	r, err := c.WaitReceipt(ctx, hash, constants.ReceiptPolling)
	if err != nil {
		return err
	}
	PrintReceipt(r)
	if r.Status == "reverted" {
		return errors.New("transaction reverted")
	}
	return nil
}

func accountArg(args []string) (common.Address, error) {
	if len(args) == 0 {
		return common.Address{}, ErrUsage
	}
	account, ok := security.ParseAddress(strings.TrimSpace(args[0]))
	if !ok {
		return common.Address{}, errors.New(constants.MsgInvalidAccount)
	}
	return account, nil
}

// StartWatch takes over the terminal and shows lifecycle events as they
// arrive until interrupted.
func StartWatch(ctx context.Context, c *Client, account common.Address) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	interrupt, resize, stopSignals := watchSignals()
	defer stopSignals()

	events := make(chan types.ChangeEvent, constants.EventBufferSize)
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Watch(ctx, account, func(ev types.ChangeEvent) {
			select {
			case events <- ev:
			default:
			}
		})
	}()

	fmt.Print("\033[?25l")
	fmt.Print("\033[2J")
	defer func() {
		fmt.Print("\033[?25h")
		fmt.Println()
		fmt.Printf("  %s● disconnected%s\n", ColorRed, ColorReset)
	}()

	filter := ""
	if account != (common.Address{}) {
		filter = account.Hex()
	}
	connectedAt := time.Now()
	logs := make([]string, 0, 15)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case ev := <-events:
			logs = append(logs, FormatEvent(ev))
			if len(logs) > 15 {
				logs = logs[1:]
			}
		case <-resize:
			fmt.Print("\033[2J")
		case <-ticker.C:
			RenderWatch(c.baseURL, filter, connectedAt, logs)
		case err := <-errCh:
			return err
		case <-interrupt:
			return nil
		}
	}
}
