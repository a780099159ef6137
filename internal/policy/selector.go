package policy

import (
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// SelectorOf hashes a canonical signature such as "mint(address,uint256)".
func SelectorOf(signature string) Selector {
	var sel Selector
	copy(sel[:], crypto.Keccak256([]byte(strings.ReplaceAll(signature, " ", "")))[:4])
	return sel
}

// SelectorFromCalldata returns the first four bytes of data, or false when
// data is too short to carry one.
func SelectorFromCalldata(data []byte) (Selector, bool) {
	var sel Selector
	if len(data) < len(sel) {
		return sel, false
	}
	copy(sel[:], data[:4])
	return sel, true
}
