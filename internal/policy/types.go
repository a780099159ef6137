// Package policy describes the capability grant a session key carries:
// fee limit, call allow-list and transfer allow-list, plus the fixed
// template new sessions are built from.
package policy

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// LimitType selects how a usage limit is accounted on-chain.
type LimitType uint8

const (
	// LimitUnlimited places no cap on usage
	LimitUnlimited LimitType = iota
	// LimitLifetime caps cumulative usage over the session lifetime
	LimitLifetime
	// LimitAllowance caps usage per Period seconds
	LimitAllowance
)

func (l LimitType) String() string {
	switch l {
	case LimitUnlimited:
		return "unlimited"
	case LimitLifetime:
		return "lifetime"
	case LimitAllowance:
		return "allowance"
	default:
		return fmt.Sprintf("LimitType(%d)", uint8(l))
	}
}

// ParseLimitType is the inverse of String.
func ParseLimitType(s string) (LimitType, error) {
	switch s {
	case "", "unlimited":
		return LimitUnlimited, nil
	case "lifetime":
		return LimitLifetime, nil
	case "allowance":
		return LimitAllowance, nil
	}
	return 0, fmt.Errorf("unknown limit type %q", s)
}

// Condition compares a calldata word against a constraint's reference value.
type Condition uint8

const (
	ConditionUnconstrained Condition = iota
	ConditionEqual
	ConditionGreater
	ConditionLess
	ConditionGreaterOrEqual
	ConditionLessOrEqual
	ConditionNotEqual
)

var conditionNames = [...]string{
	ConditionUnconstrained:  "unconstrained",
	ConditionEqual:          "equal",
	ConditionGreater:        "greater",
	ConditionLess:           "less",
	ConditionGreaterOrEqual: "greater_or_equal",
	ConditionLessOrEqual:    "less_or_equal",
	ConditionNotEqual:       "not_equal",
}

func (c Condition) String() string {
	if int(c) < len(conditionNames) {
		return conditionNames[c]
	}
	return fmt.Sprintf("Condition(%d)", uint8(c))
}

// ParseCondition is the inverse of String.
func ParseCondition(s string) (Condition, error) {
	if s == "" {
		return ConditionUnconstrained, nil
	}
	for i, name := range conditionNames {
		if name == s {
			return Condition(i), nil
		}
	}
	return 0, fmt.Errorf("unknown condition %q", s)
}

// Limit is a usage limit. Period is only meaningful for LimitAllowance.
type Limit struct {
	LimitType LimitType `json:"limitType"`
	Limit     *big.Int  `json:"limit"`
	Period    uint64    `json:"period"`
}

// Unlimited returns the zero-valued unlimited limit.
func Unlimited() Limit {
	return Limit{LimitType: LimitUnlimited, Limit: new(big.Int)}
}

func (l Limit) copy() Limit {
	return Limit{LimitType: l.LimitType, Limit: cloneBig(l.Limit), Period: l.Period}
}

// Constraint restricts one 32-byte calldata argument of an allowed call.
type Constraint struct {
	Condition Condition   `json:"condition"`
	Index     uint64      `json:"index"`
	RefValue  common.Hash `json:"refValue"`
	Limit     Limit       `json:"limit"`
}

// CallPolicy allow-lists one function on one contract.
type CallPolicy struct {
	Target         common.Address `json:"target"`
	Selector       Selector       `json:"selector"`
	ValueLimit     Limit          `json:"valueLimit"`
	MaxValuePerUse *big.Int       `json:"maxValuePerUse"`
	Constraints    []Constraint   `json:"constraints"`
}

// TransferPolicy allow-lists plain value transfers to one address.
type TransferPolicy struct {
	Target         common.Address `json:"target"`
	MaxValuePerUse *big.Int       `json:"maxValuePerUse"`
	ValueLimit     Limit          `json:"valueLimit"`
}

// Session is the capability grant bound to one ephemeral signer.
// Values are treated as immutable once the provider has accepted them.
type Session struct {
	Signer           common.Address   `json:"signer"`
	ExpiresAt        uint64           `json:"expiresAt"`
	FeeLimit         Limit            `json:"feeLimit"`
	CallPolicies     []CallPolicy     `json:"callPolicies"`
	TransferPolicies []TransferPolicy `json:"transferPolicies"`
}

// Expiry returns ExpiresAt as a time.
func (s Session) Expiry() time.Time {
	return time.Unix(int64(s.ExpiresAt), 0).UTC()
}

// Expired reports whether the session is no longer usable at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.Expiry())
}

// Equal compares sessions by their on-chain identity.
func (s Session) Equal(o Session) bool {
	return s.Hash() == o.Hash()
}

// Selector is a 4-byte function selector.
type Selector [4]byte

func (s Selector) Hex() string {
	return hexutil.Encode(s[:])
}

func (s Selector) String() string {
	return s.Hex()
}

func (s Selector) MarshalText() ([]byte, error) {
	return []byte(s.Hex()), nil
}

func (s *Selector) UnmarshalText(input []byte) error {
	b, err := hexutil.Decode(string(input))
	if err != nil {
		return fmt.Errorf("selector: %w", err)
	}
	if len(b) != len(s) {
		return fmt.Errorf("selector: want 4 bytes, got %d", len(b))
	}
	copy(s[:], b)
	return nil
}

func cloneBig(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}
