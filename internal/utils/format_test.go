package utils

import (
	"math/big"
	"testing"
	"time"
)

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		value    string
		decimals uint8
		want     string
	}{
		{"10000000000000000000", 18, "10"},
		{"1500000000000000000", 18, "1.5"},
		{"1", 18, "0.000000000000000001"},
		{"0", 18, "0"},
		{"-2500", 3, "-2.5"},
		{"42", 0, "42"},
	}

	for _, tt := range tests {
		v, _ := new(big.Int).SetString(tt.value, 10)
		if got := FormatUnits(v, tt.decimals); got != tt.want {
			t.Errorf("FormatUnits(%s, %d) = %q, want %q", tt.value, tt.decimals, got, tt.want)
		}
	}

	if got := FormatUnits(nil, 18); got != "0" {
		t.Errorf("FormatUnits(nil) = %q, want 0", got)
	}
}

func TestShortHash(t *testing.T) {
	h := "0x8f1c2b7e5d0a9c33aa55bb77cc99dd11ee22ff3344556677889900aabbccddee"
	if got := ShortHash(h); got != "0x8f1c2b...ccddee" {
		t.Errorf("ShortHash() = %q", got)
	}
	if got := ShortHash("0x1234"); got != "0x1234" {
		t.Errorf("ShortHash(short) = %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{24 * time.Hour, "24 hours"},
		{time.Hour, "1 hour"},
		{90 * time.Minute, "1 hour 30 minutes"},
		{5 * time.Minute, "5 minutes"},
		{-time.Second, "expired"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestExplorerURLs(t *testing.T) {
	if got := ExplorerTxURL("https://explorer.example/", "0xabc"); got != "https://explorer.example/tx/0xabc" {
		t.Errorf("ExplorerTxURL() = %q", got)
	}
	if got := ExplorerAddressURL("", "0xdef"); got != "https://explorer.testnet.abs.xyz/address/0xdef" {
		t.Errorf("ExplorerAddressURL() = %q", got)
	}
}
