package zcpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strconv"

	"github.com/fxamacker/cbor/v2"

	"github.com/zerocopy-systems/zcp/core"
)

// attestationCBOR is the CBOR wire layout used by vsock relays.
// The payload travels as a native CBOR value rather than embedded JSON text.
type attestationCBOR struct {
	Version       string          `cbor:"version"`
	Timestamp     int64           `cbor:"timestamp"`
	Payload       cbor.RawMessage `cbor:"payload"`
	Signature     string          `cbor:"signature"`
	EnclavePubKey string          `cbor:"enclave_pubkey"`
	PolicyProof   *PolicyProof    `cbor:"policy_proof,omitempty"`
}

var payloadDecMode = mustPayloadDecMode()

func mustPayloadDecMode() cbor.DecMode {
	mode, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		DupMapKey:      cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor payload decode mode: %v", err))
	}
	return mode
}

// EncodeAttestationCBOR encodes an attestation in the CBOR relay format.
func EncodeAttestationCBOR(att *Attestation) ([]byte, error) {
	payloadValue, err := payloadToValue(att.Payload)
	if err != nil {
		return nil, err
	}

	payloadBytes, err := cbor.Marshal(payloadValue)
	if err != nil {
		return nil, fmt.Errorf("marshal CBOR payload: %w", err)
	}

	wire := attestationCBOR{
		Version:       att.Version,
		Timestamp:     att.Timestamp,
		Payload:       payloadBytes,
		Signature:     att.Signature,
		EnclavePubKey: att.EnclavePubKey,
		PolicyProof:   att.PolicyProof,
	}

	data, err := cbor.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal CBOR attestation: %w", err)
	}
	return data, nil
}

// DecodeAttestationCBOR decodes the CBOR relay format. The payload is converted to its
// canonical JSON form, so signature verification sees the same bytes as for JSON transport.
func DecodeAttestationCBOR(data []byte) (*Attestation, error) {
	var wire attestationCBOR
	if err := cbor.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("parse CBOR attestation: %w", err)
	}

	var payload json.RawMessage
	if len(wire.Payload) > 0 {
		var value any
		if err := payloadDecMode.Unmarshal(wire.Payload, &value); err != nil {
			return nil, fmt.Errorf("parse CBOR payload: %w", err)
		}
		canonical, err := core.CanonicalValue(value)
		if err != nil {
			return nil, fmt.Errorf("canonicalize CBOR payload: %w", err)
		}
		payload = canonical
	}

	return &Attestation{
		Version:       wire.Version,
		Timestamp:     wire.Timestamp,
		Payload:       payload,
		Signature:     wire.Signature,
		EnclavePubKey: wire.EnclavePubKey,
		PolicyProof:   wire.PolicyProof,
	}, nil
}

// payloadToValue decodes a JSON payload into CBOR-friendly Go values.
// Numbers become int64, uint64, big.Int or float64 so their canonical text survives the trip.
func payloadToValue(raw json.RawMessage) (any, error) {
	canonical, err := core.CanonicalPayload(raw)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(canonical))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	return convertNumbers(value)
}

func convertNumbers(value any) (any, error) {
	switch v := value.(type) {
	case json.Number:
		return convertNumber(v)
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			converted, err := convertNumbers(elem)
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, elem := range v {
			converted, err := convertNumbers(elem)
			if err != nil {
				return nil, err
			}
			out[k] = converted
		}
		return out, nil
	default:
		return value, nil
	}
}

func convertNumber(n json.Number) (any, error) {
	s := n.String()
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return u, nil
	}
	if b, ok := new(big.Int).SetString(s, 10); ok {
		return b, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid payload number %q: %w", s, err)
	}
	return f, nil
}
