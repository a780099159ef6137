package policy

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"sessionkeys/internal/constants"
)

// CallTemplate is a call policy whose selector is derived from Function.
type CallTemplate struct {
	Target         common.Address
	Function       string
	MaxValuePerUse *big.Int
	ValueLimit     Limit
	Constraints    []Constraint
}

// TransferTemplate is a transfer policy. ToOwner replaces Target with the
// account the session is created for.
type TransferTemplate struct {
	Target         common.Address
	ToOwner        bool
	MaxValuePerUse *big.Int
	ValueLimit     Limit
}

// Template is the fixed policy every new session is requested with.
type Template struct {
	Lifetime  time.Duration
	FeeLimit  Limit
	Calls     []CallTemplate
	Transfers []TransferTemplate
}

// MintTemplate allow-lists exactly mint(address,uint256) on token, with a
// lifetime fee cap and the default session lifetime.
func MintTemplate(token common.Address) Template {
	return Template{
		Lifetime: constants.SessionLifetime,
		FeeLimit: Limit{
			LimitType: LimitLifetime,
			Limit:     math.MustParseBig256(constants.SessionFeeLimit),
		},
		Calls: []CallTemplate{{
			Target:         token,
			Function:       constants.MintSignature,
			MaxValuePerUse: new(big.Int),
			ValueLimit:     Unlimited(),
		}},
	}
}

// WithOwnerTransfer adds a bounded-allowance transfer policy back to the
// owning account.
func (t Template) WithOwnerTransfer() Template {
	out := t
	out.Transfers = append(append([]TransferTemplate(nil), t.Transfers...), TransferTemplate{
		ToOwner:        true,
		MaxValuePerUse: math.MustParseBig256(constants.TransferMaxValuePerUse),
		ValueLimit: Limit{
			LimitType: LimitAllowance,
			Limit:     math.MustParseBig256(constants.TransferAllowance),
			Period:    constants.TransferAllowanceEvery,
		},
	})
	return out
}

// Validate rejects templates that would produce an unusable session.
func (t Template) Validate() error {
	if t.Lifetime <= 0 {
		return errors.New("policy template: lifetime must be positive")
	}
	if len(t.Calls) == 0 && len(t.Transfers) == 0 {
		return errors.New("policy template: no call or transfer policies")
	}
	if t.FeeLimit.LimitType != LimitUnlimited && t.FeeLimit.Limit == nil {
		return errors.New("policy template: fee limit without a cap")
	}
	if t.FeeLimit.LimitType == LimitAllowance && t.FeeLimit.Period == 0 {
		return errors.New("policy template: allowance fee limit needs a period")
	}
	for i, c := range t.Calls {
		if c.Function == "" {
			return fmt.Errorf("policy template: call %d has no function signature", i)
		}
		if c.Target == (common.Address{}) {
			return fmt.Errorf("policy template: call %d has no target", i)
		}
	}
	for i, tr := range t.Transfers {
		if !tr.ToOwner && tr.Target == (common.Address{}) {
			return fmt.Errorf("policy template: transfer %d has no target", i)
		}
	}
	return nil
}

// Build instantiates the template for one signer and owning account.
// Every big.Int is copied so the returned session shares nothing with t.
func (t Template) Build(signer, owner common.Address, now time.Time) Session {
	s := Session{
		Signer:           signer,
		ExpiresAt:        uint64(now.Add(t.Lifetime).Unix()),
		FeeLimit:         t.FeeLimit.copy(),
		CallPolicies:     make([]CallPolicy, 0, len(t.Calls)),
		TransferPolicies: make([]TransferPolicy, 0, len(t.Transfers)),
	}
	for _, c := range t.Calls {
		constraints := make([]Constraint, 0, len(c.Constraints))
		for _, con := range c.Constraints {
			con.Limit = con.Limit.copy()
			constraints = append(constraints, con)
		}
		s.CallPolicies = append(s.CallPolicies, CallPolicy{
			Target:         c.Target,
			Selector:       SelectorOf(c.Function),
			ValueLimit:     c.ValueLimit.copy(),
			MaxValuePerUse: cloneBig(c.MaxValuePerUse),
			Constraints:    constraints,
		})
	}
	for _, tr := range t.Transfers {
		target := tr.Target
		if tr.ToOwner {
			target = owner
		}
		s.TransferPolicies = append(s.TransferPolicies, TransferPolicy{
			Target:         target,
			MaxValuePerUse: cloneBig(tr.MaxValuePerUse),
			ValueLimit:     tr.ValueLimit.copy(),
		})
	}
	return s
}
