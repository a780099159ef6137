// Command sessionctl drives a sessionkeys server from the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"sessionkeys/internal/client"
	"sessionkeys/internal/config"
	"sessionkeys/internal/constants"
	"sessionkeys/internal/utils"
)

func printUsage() {
	client.PrintBanner()
	fmt.Printf("  %s%s%s\n", constants.ColorBold, constants.MsgUsage, constants.ColorReset)
	fmt.Println()
	fmt.Printf("    sessionctl %sstatus%s <account>            # show the account's session\n", constants.ColorCyan, constants.ColorReset)
	fmt.Printf("    sessionctl %screate%s <account>            # create a session key\n", constants.ColorCyan, constants.ColorReset)
	fmt.Printf("    sessionctl %srevoke%s <account>            # revoke it on-chain and locally\n", constants.ColorCyan, constants.ColorReset)
	fmt.Printf("    sessionctl %slogout%s <account>            # drop the live client, keep the key\n", constants.ColorCyan, constants.ColorReset)
	fmt.Printf("    sessionctl %smint%s <account> [amt] [to]   # mint through the session key\n", constants.ColorCyan, constants.ColorReset)
	fmt.Printf("    sessionctl %sbalance%s <account>           # token balance\n", constants.ColorCyan, constants.ColorReset)
	fmt.Printf("    sessionctl %swait%s <tx>                   # wait for a receipt\n", constants.ColorCyan, constants.ColorReset)
	fmt.Printf("    sessionctl %swatch%s [account]             # live lifecycle events\n", constants.ColorCyan, constants.ColorReset)
	fmt.Printf("    sessionctl %shealth%s                      # server health\n", constants.ColorCyan, constants.ColorReset)
	fmt.Println()
	client.PrintHint(constants.MsgExample)
	fmt.Println()
	flag.PrintDefaults()
}

func main() {
	_ = godotenv.Load()

	serverURL := flag.String("server", utils.GetEnv("SESSIONKEYS_SERVER", constants.DefaultServerURL), "sessionkeys server URL")
	token := flag.String("token", utils.GetEnv(config.EnvAPIToken, ""), "API bearer token")
	yes := flag.Bool("y", false, "skip confirmation prompts")
	wait := flag.Bool("wait", false, "wait for minted transactions to be mined")
	versionFlag := flag.Bool("version", false, "print version")
	flag.Usage = printUsage
	flag.Parse()

	if *versionFlag {
		fmt.Printf("%s v%s\n", constants.AppName, constants.Version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := client.New(*serverURL, *token)
	err := client.Run(ctx, c, flag.Args(), client.Options{Yes: *yes, Wait: *wait})
	if errors.Is(err, client.ErrUsage) {
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		client.PrintError(err)
		os.Exit(1)
	}
}
