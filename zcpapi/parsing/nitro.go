package parsing

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/zerocopy-systems/zcp/zcpapi"
)

// NitroAttestationDocument represents the raw CBOR structure from AWS Nitro Enclaves
type NitroAttestationDocument struct {
	ModuleID    string            `cbor:"module_id"`
	Digest      string            `cbor:"digest"`
	Timestamp   uint64            `cbor:"timestamp"`
	PCRs        map[uint64][]byte `cbor:"pcrs"`
	Certificate []byte            `cbor:"certificate"`
	CABundle    [][]byte          `cbor:"cabundle"`
	PublicKey   []byte            `cbor:"public_key"`
	UserData    []byte            `cbor:"user_data"`
	Nonce       []byte            `cbor:"nonce"`
}

// FormatPCR formats PCR bytes as hex string
func FormatPCR(pcrData []byte) string {
	if len(pcrData) == 0 {
		return ""
	}
	return fmt.Sprintf("%x", pcrData)
}

// ExtractPCRs extracts and formats the measured-image PCR values from the raw CBOR PCR map
func ExtractPCRs(rawPCRs map[uint64][]byte) zcpapi.PCRs {
	return zcpapi.PCRs{
		ImageFileHash:   FormatPCR(rawPCRs[0]),
		KernelHash:      FormatPCR(rawPCRs[1]),
		ApplicationHash: FormatPCR(rawPCRs[2]),
	}
}

// ParseNitroDocument decodes the COSE payload of a Nitro attestation into a NitroDocument.
// The document timestamp is milliseconds since epoch.
func ParseNitroDocument(payload []byte) (*zcpapi.NitroDocument, error) {
	var raw NitroAttestationDocument
	if err := cbor.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("parse Nitro attestation document: %w", err)
	}

	if raw.ModuleID == "" {
		return nil, fmt.Errorf("Nitro attestation document missing module_id")
	}

	return &zcpapi.NitroDocument{
		ModuleID:    raw.ModuleID,
		Timestamp:   time.UnixMilli(int64(raw.Timestamp)).UTC(),
		Digest:      raw.Digest,
		PCRs:        ExtractPCRs(raw.PCRs),
		Certificate: raw.Certificate,
		CABundle:    raw.CABundle,
		PublicKey:   raw.PublicKey,
		UserData:    raw.UserData,
		Nonce:       raw.Nonce,
	}, nil
}
