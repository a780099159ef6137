package utils

import (
	"strings"

	"sessionkeys/internal/constants"
)

// NormalizeServerURL trims trailing slash and determines if TLS verification should be skipped
func NormalizeServerURL(serverURL string) (string, bool) {
	serverURL = strings.TrimSuffix(serverURL, "/")
	useHTTPS := strings.HasPrefix(serverURL, "https://")
	skipTLSVerify := useHTTPS && (strings.Contains(serverURL, "localhost") ||
		strings.Contains(serverURL, "127.0.0.1"))
	return serverURL, skipTLSVerify
}

// ExplorerTxURL links a transaction on the block explorer
func ExplorerTxURL(explorer, hash string) string {
	if explorer == "" {
		explorer = constants.ExplorerURL
	}
	return strings.TrimSuffix(explorer, "/") + "/tx/" + hash
}

// ExplorerAddressURL links an account on the block explorer
func ExplorerAddressURL(explorer, address string) string {
	if explorer == "" {
		explorer = constants.ExplorerURL
	}
	return strings.TrimSuffix(explorer, "/") + "/address/" + address
}
