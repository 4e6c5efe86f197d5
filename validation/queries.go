package validation

import (
	"github.com/shopspring/decimal"

	"github.com/zerocopy-systems/zcp/core"
	"github.com/zerocopy-systems/zcp/zcpapi"
)

// HasPolicyProof reports whether a policy proof is attached.
func HasPolicyProof(att *zcpapi.Attestation) bool {
	return att != nil && att.PolicyProof != nil
}

// HasProperty reports whether the policy proof declares a checked property named exactly name.
func HasProperty(att *zcpapi.Attestation, name string) bool {
	_, ok := findProperty(att, name)
	return ok
}

// GetMaxLeverage returns the MaxLeverage(n) cap declared by the policy proof.
// ok is false when there is no proof, no MaxLeverage entry, or the argument is not an integer.
func GetMaxLeverage(att *zcpapi.Attestation) (leverage int64, ok bool) {
	p, found := findProperty(att, core.PropertyMaxLeverage)
	if !found {
		return 0, false
	}
	return p.Int()
}

// GetAllowedPairs returns the AllowedPairs([...]) list declared by the policy proof.
func GetAllowedPairs(att *zcpapi.Attestation) ([]string, bool) {
	p, found := findProperty(att, core.PropertyAllowedPairs)
	if !found {
		return nil, false
	}
	return p.List()
}

// GetMaxOrderSize returns the MaxOrderSize(amount) limit declared by the policy proof.
func GetMaxOrderSize(att *zcpapi.Attestation) (decimal.Decimal, bool) {
	p, found := findProperty(att, core.PropertyMaxOrderSize)
	if !found {
		return decimal.Zero, false
	}
	return p.Decimal()
}

// GetVersionTuple parses the attestation schema version into (major, minor).
// ok is false when the version is not exactly two non-negative integers.
func GetVersionTuple(att *zcpapi.Attestation) (major, minor int, ok bool) {
	if att == nil {
		return 0, 0, false
	}
	v, ok := core.ParseVersion(att.Version)
	if !ok {
		return 0, 0, false
	}
	return v.Major, v.Minor, true
}

func findProperty(att *zcpapi.Attestation, name string) (core.ParsedProperty, bool) {
	if !HasPolicyProof(att) {
		return core.ParsedProperty{}, false
	}
	return core.FindProperty(att.PolicyProof.CheckedProperties, name)
}
