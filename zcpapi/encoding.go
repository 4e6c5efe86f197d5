package zcpapi

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
)

// maxDecompressedSize bounds gzip expansion of attestation links
const maxDecompressedSize = 4 << 20

// AttestationGzip is a gzip-compressed attestation JSON document encoded as unpadded
// URL-safe base64, suitable for query strings and notification payloads.
type AttestationGzip string

func (g AttestationGzip) String() string {
	return string(g)
}

// ParseAttestation decodes an attestation JSON document.
// Unknown fields are ignored so newer producers remain readable.
func ParseAttestation(data []byte) (*Attestation, error) {
	var att Attestation
	if err := json.Unmarshal(data, &att); err != nil {
		return nil, fmt.Errorf("parse attestation: %w", err)
	}
	return &att, nil
}

// ParseLegacyProof decodes a v1 .zcp proof JSON document.
func ParseLegacyProof(data []byte) (*LegacyProof, error) {
	var proof LegacyProof
	if err := json.Unmarshal(data, &proof); err != nil {
		return nil, fmt.Errorf("parse legacy proof: %w", err)
	}
	return &proof, nil
}

// IsLegacyProof reports whether a JSON document uses the v1 proof layout,
// which carries a numeric version instead of "major.minor".
func IsLegacyProof(data []byte) bool {
	var probe struct {
		Version json.RawMessage `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	v := bytes.TrimSpace(probe.Version)
	return len(v) > 0 && v[0] >= '0' && v[0] <= '9'
}

// CompressAttestation serializes an attestation to JSON, gzips it and encodes it URL-safe.
func CompressAttestation(att *Attestation) (AttestationGzip, error) {
	data, err := json.Marshal(att)
	if err != nil {
		return "", fmt.Errorf("marshal attestation: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return "", fmt.Errorf("gzip write: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("gzip close: %w", err)
	}

	return AttestationGzip(base64.RawURLEncoding.EncodeToString(buf.Bytes())), nil
}

// Decompress decodes and decompresses the attestation JSON bytes.
func (g AttestationGzip) Decompress() ([]byte, error) {
	compressed, err := base64.RawURLEncoding.DecodeString(string(g))
	if err != nil {
		return nil, fmt.Errorf("decode base64url: %w", err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()

	data, err := io.ReadAll(io.LimitReader(gz, maxDecompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("read gzip: %w", err)
	}
	if len(data) > maxDecompressedSize {
		return nil, fmt.Errorf("decompressed attestation exceeds %d bytes", maxDecompressedSize)
	}

	return data, nil
}

// Attestation decompresses and parses the attestation.
func (g AttestationGzip) Attestation() (*Attestation, error) {
	data, err := g.Decompress()
	if err != nil {
		return nil, err
	}
	return ParseAttestation(data)
}
