package parsing

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// COSESign1 holds the raw parts of an untagged COSE_Sign1 structure:
// [protected, unprotected, payload, signature]
type COSESign1 struct {
	Protected []byte
	Payload   []byte
	Signature []byte
}

// ParseCOSESign1 splits a COSE_Sign1 4-element array into its signed parts.
// AWS Nitro emits the untagged form; a leading tag 18 is also accepted.
func ParseCOSESign1(coseBytes []byte) (*COSESign1, error) {
	var coseArray []cbor.RawMessage
	err := cbor.Unmarshal(coseBytes, &coseArray)
	if err != nil {
		var tagged cbor.RawTag
		if tagErr := cbor.Unmarshal(coseBytes, &tagged); tagErr != nil || tagged.Number != 18 {
			return nil, fmt.Errorf("parse COSE array: %w", err)
		}
		if err := cbor.Unmarshal(tagged.Content, &coseArray); err != nil {
			return nil, fmt.Errorf("parse tagged COSE array: %w", err)
		}
	}

	if len(coseArray) != 4 {
		return nil, fmt.Errorf("invalid COSE_Sign1 structure: expected 4 elements, got %d", len(coseArray))
	}

	var msg COSESign1
	if err := cbor.Unmarshal(coseArray[0], &msg.Protected); err != nil {
		return nil, fmt.Errorf("invalid protected headers: %w", err)
	}
	if err := cbor.Unmarshal(coseArray[2], &msg.Payload); err != nil {
		return nil, fmt.Errorf("invalid payload in COSE structure: %w", err)
	}
	if err := cbor.Unmarshal(coseArray[3], &msg.Signature); err != nil {
		return nil, fmt.Errorf("invalid signature in COSE structure: %w", err)
	}

	return &msg, nil
}

// SigStructure builds the Sig_structure that a COSE_Sign1 signature covers:
// ["Signature1", protected, external_aad, payload]
// Attestation documents use an empty external_aad.
func (m *COSESign1) SigStructure() ([]byte, error) {
	sigStructure := []any{
		"Signature1",
		m.Protected,
		[]byte{},
		m.Payload,
	}

	data, err := cbor.Marshal(sigStructure)
	if err != nil {
		return nil, fmt.Errorf("marshal Sig_structure: %w", err)
	}
	return data, nil
}
