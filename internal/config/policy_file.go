package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"gopkg.in/yaml.v3"

	"sessionkeys/internal/policy"
)

// ownerTarget in a transfer target means the account the session is for.
const ownerTarget = "owner"

var errOwnerCall = errors.New("owner is only valid as a transfer target")

type limitFile struct {
	Type   string `yaml:"type"`
	Limit  string `yaml:"limit"`
	Period uint64 `yaml:"period"`
}

type constraintFile struct {
	Condition string    `yaml:"condition"`
	Index     uint64    `yaml:"index"`
	RefValue  string    `yaml:"ref_value"`
	Limit     limitFile `yaml:"limit"`
}

type callFile struct {
	Target         string           `yaml:"target"`
	Function       string           `yaml:"function"`
	MaxValuePerUse string           `yaml:"max_value_per_use"`
	ValueLimit     limitFile        `yaml:"value_limit"`
	Constraints    []constraintFile `yaml:"constraints"`
}

type transferFile struct {
	Target         string    `yaml:"target"`
	MaxValuePerUse string    `yaml:"max_value_per_use"`
	ValueLimit     limitFile `yaml:"value_limit"`
}

type policyFile struct {
	Lifetime  string         `yaml:"lifetime"`
	FeeLimit  limitFile      `yaml:"fee_limit"`
	Calls     []callFile     `yaml:"calls"`
	Transfers []transferFile `yaml:"transfers"`
}

// LoadPolicyFile reads a YAML policy template.
func LoadPolicyFile(path string) (policy.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return policy.Template{}, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes a YAML policy template. Amounts are decimal or 0x
// hex strings in base units.
func ParsePolicy(data []byte) (policy.Template, error) {
	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return policy.Template{}, fmt.Errorf("parse policy file: %w", err)
	}

	var t policy.Template
	var err error
	if pf.Lifetime == "" {
		return t, fmt.Errorf("policy file: lifetime is required")
	}
	if t.Lifetime, err = time.ParseDuration(pf.Lifetime); err != nil {
		return t, fmt.Errorf("policy file: lifetime: %w", err)
	}
	if t.FeeLimit, err = pf.FeeLimit.limit(); err != nil {
		return t, fmt.Errorf("policy file: fee_limit: %w", err)
	}

	for i, c := range pf.Calls {
		if strings.EqualFold(c.Target, ownerTarget) {
			return t, fmt.Errorf("policy file: call %d: %w", i, errOwnerCall)
		}
		ct := policy.CallTemplate{Function: c.Function}
		if ct.Target, err = address(c.Target); err != nil {
			return t, fmt.Errorf("policy file: call %d: %w", i, err)
		}
		if ct.MaxValuePerUse, err = amount(c.MaxValuePerUse); err != nil {
			return t, fmt.Errorf("policy file: call %d: max_value_per_use: %w", i, err)
		}
		if ct.ValueLimit, err = c.ValueLimit.limit(); err != nil {
			return t, fmt.Errorf("policy file: call %d: value_limit: %w", i, err)
		}
		for j, con := range c.Constraints {
			pc, err := con.constraint()
			if err != nil {
				return t, fmt.Errorf("policy file: call %d constraint %d: %w", i, j, err)
			}
			ct.Constraints = append(ct.Constraints, pc)
		}
		t.Calls = append(t.Calls, ct)
	}

	for i, tr := range pf.Transfers {
		tt := policy.TransferTemplate{}
		if strings.EqualFold(tr.Target, ownerTarget) {
			tt.ToOwner = true
		} else if tt.Target, err = address(tr.Target); err != nil {
			return t, fmt.Errorf("policy file: transfer %d: %w", i, err)
		}
		if tt.MaxValuePerUse, err = amount(tr.MaxValuePerUse); err != nil {
			return t, fmt.Errorf("policy file: transfer %d: max_value_per_use: %w", i, err)
		}
		if tt.ValueLimit, err = tr.ValueLimit.limit(); err != nil {
			return t, fmt.Errorf("policy file: transfer %d: value_limit: %w", i, err)
		}
		t.Transfers = append(t.Transfers, tt)
	}

	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

func (l limitFile) limit() (policy.Limit, error) {
	lt, err := policy.ParseLimitType(l.Type)
	if err != nil {
		return policy.Limit{}, err
	}
	v, err := amount(l.Limit)
	if err != nil {
		return policy.Limit{}, err
	}
	if lt == policy.LimitAllowance && l.Period == 0 {
		return policy.Limit{}, fmt.Errorf("allowance needs a period")
	}
	return policy.Limit{LimitType: lt, Limit: v, Period: l.Period}, nil
}

func (c constraintFile) constraint() (policy.Constraint, error) {
	cond, err := policy.ParseCondition(c.Condition)
	if err != nil {
		return policy.Constraint{}, err
	}
	lim, err := c.Limit.limit()
	if err != nil {
		return policy.Constraint{}, err
	}
	ref, err := amount(c.RefValue)
	if err != nil {
		return policy.Constraint{}, fmt.Errorf("ref_value: %w", err)
	}
	return policy.Constraint{
		Condition: cond,
		Index:     c.Index,
		RefValue:  common.BigToHash(ref),
		Limit:     lim,
	}, nil
}

func address(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func amount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := math.ParseBig256(s)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
