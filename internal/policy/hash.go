package policy

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	usageLimitComponents = []abi.ArgumentMarshaling{
		{Name: "limitType", Type: "uint8"},
		{Name: "limit", Type: "uint256"},
		{Name: "period", Type: "uint256"},
	}

	sessionSpecArgs = abi.Arguments{{Type: mustTuple("struct SessionLib.SessionSpec", []abi.ArgumentMarshaling{
		{Name: "signer", Type: "address"},
		{Name: "expiresAt", Type: "uint256"},
		{Name: "feeLimit", Type: "tuple", InternalType: "struct SessionLib.UsageLimit", Components: usageLimitComponents},
		{Name: "callPolicies", Type: "tuple[]", InternalType: "struct SessionLib.CallSpec[]", Components: []abi.ArgumentMarshaling{
			{Name: "target", Type: "address"},
			{Name: "selector", Type: "bytes4"},
			{Name: "maxValuePerUse", Type: "uint256"},
			{Name: "valueLimit", Type: "tuple", InternalType: "struct SessionLib.UsageLimit", Components: usageLimitComponents},
			{Name: "constraints", Type: "tuple[]", InternalType: "struct SessionLib.Constraint[]", Components: []abi.ArgumentMarshaling{
				{Name: "condition", Type: "uint8"},
				{Name: "index", Type: "uint64"},
				{Name: "refValue", Type: "bytes32"},
				{Name: "limit", Type: "tuple", InternalType: "struct SessionLib.UsageLimit", Components: usageLimitComponents},
			}},
		}},
		{Name: "transferPolicies", Type: "tuple[]", InternalType: "struct SessionLib.TransferSpec[]", Components: []abi.ArgumentMarshaling{
			{Name: "target", Type: "address"},
			{Name: "maxValuePerUse", Type: "uint256"},
			{Name: "valueLimit", Type: "tuple", InternalType: "struct SessionLib.UsageLimit", Components: usageLimitComponents},
		}},
	})}}
)

func mustTuple(internalType string, components []abi.ArgumentMarshaling) abi.Type {
	t, err := abi.NewType("tuple", internalType, components)
	if err != nil {
		panic("policy: bad session spec abi: " + err.Error())
	}
	return t
}

// Field names follow abi.ToCamelCase of the component names above.
type abiUsageLimit struct {
	LimitType uint8
	Limit     *big.Int
	Period    *big.Int
}

type abiConstraint struct {
	Condition uint8
	Index     uint64
	RefValue  [32]byte
	Limit     abiUsageLimit
}

type abiCallSpec struct {
	Target         common.Address
	Selector       [4]byte
	MaxValuePerUse *big.Int
	ValueLimit     abiUsageLimit
	Constraints    []abiConstraint
}

type abiTransferSpec struct {
	Target         common.Address
	MaxValuePerUse *big.Int
	ValueLimit     abiUsageLimit
}

type abiSessionSpec struct {
	Signer           common.Address
	ExpiresAt        *big.Int
	FeeLimit         abiUsageLimit
	CallPolicies     []abiCallSpec
	TransferPolicies []abiTransferSpec
}

func (l Limit) abi() abiUsageLimit {
	return abiUsageLimit{
		LimitType: uint8(l.LimitType),
		Limit:     cloneBig(l.Limit),
		Period:    new(big.Int).SetUint64(l.Period),
	}
}

// Encode returns the ABI encoding of the session as a SessionSpec tuple.
func (s Session) Encode() ([]byte, error) {
	spec := abiSessionSpec{
		Signer:           s.Signer,
		ExpiresAt:        new(big.Int).SetUint64(s.ExpiresAt),
		FeeLimit:         s.FeeLimit.abi(),
		CallPolicies:     make([]abiCallSpec, 0, len(s.CallPolicies)),
		TransferPolicies: make([]abiTransferSpec, 0, len(s.TransferPolicies)),
	}
	for _, cp := range s.CallPolicies {
		call := abiCallSpec{
			Target:         cp.Target,
			Selector:       cp.Selector,
			MaxValuePerUse: cloneBig(cp.MaxValuePerUse),
			ValueLimit:     cp.ValueLimit.abi(),
			Constraints:    make([]abiConstraint, 0, len(cp.Constraints)),
		}
		for _, c := range cp.Constraints {
			call.Constraints = append(call.Constraints, abiConstraint{
				Condition: uint8(c.Condition),
				Index:     c.Index,
				RefValue:  c.RefValue,
				Limit:     c.Limit.abi(),
			})
		}
		spec.CallPolicies = append(spec.CallPolicies, call)
	}
	for _, tp := range s.TransferPolicies {
		spec.TransferPolicies = append(spec.TransferPolicies, abiTransferSpec{
			Target:         tp.Target,
			MaxValuePerUse: cloneBig(tp.MaxValuePerUse),
			ValueLimit:     tp.ValueLimit.abi(),
		})
	}
	return sessionSpecArgs.Pack(spec)
}

// Hash is keccak256 of the encoded SessionSpec, the identifier the
// session validator stores and revokes by. Returns the zero hash if the
// session cannot be encoded.
func (s Session) Hash() common.Hash {
	enc, err := s.Encode()
	if err != nil {
		return common.Hash{}
	}
	return crypto.Keccak256Hash(enc)
}
