package policy

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrCallNotAllowed     = errors.New("call not allowed by session policy")
	ErrTransferNotAllowed = errors.New("transfer not allowed by session policy")
	ErrValueLimitExceeded = errors.New("value exceeds session limit")
)

// AllowsCall checks a single contract call against the call allow-list.
// Only per-use bounds are checked here; cumulative lifetime and allowance
// usage is tracked by the validator contract.
func (s Session) AllowsCall(target common.Address, data []byte, value *big.Int) error {
	sel, ok := SelectorFromCalldata(data)
	if !ok {
		return fmt.Errorf("%w: calldata shorter than a selector", ErrCallNotAllowed)
	}
	for _, cp := range s.CallPolicies {
		if cp.Target != target || cp.Selector != sel {
			continue
		}
		return checkValue(value, cp.MaxValuePerUse, cp.ValueLimit)
	}
	return fmt.Errorf("%w: %s on %s", ErrCallNotAllowed, sel, target.Hex())
}

// AllowsTransfer checks a plain value transfer against the transfer allow-list.
func (s Session) AllowsTransfer(target common.Address, value *big.Int) error {
	for _, tp := range s.TransferPolicies {
		if tp.Target != target {
			continue
		}
		return checkValue(value, tp.MaxValuePerUse, tp.ValueLimit)
	}
	return fmt.Errorf("%w: %s", ErrTransferNotAllowed, target.Hex())
}

func checkValue(value, maxPerUse *big.Int, limit Limit) error {
	if value == nil || value.Sign() == 0 {
		return nil
	}
	if value.Sign() < 0 {
		return fmt.Errorf("%w: negative value %s", ErrValueLimitExceeded, value)
	}
	if maxPerUse == nil || value.Cmp(maxPerUse) > 0 {
		return fmt.Errorf("%w: %s > max per use %s", ErrValueLimitExceeded, value, cloneBig(maxPerUse))
	}
	if limit.LimitType != LimitUnlimited && value.Cmp(cloneBig(limit.Limit)) > 0 {
		return fmt.Errorf("%w: %s > %s limit %s", ErrValueLimitExceeded, value, limit.LimitType, cloneBig(limit.Limit))
	}
	return nil
}
