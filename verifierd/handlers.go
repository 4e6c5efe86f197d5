package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zerocopy-systems/zcp/core"
	"github.com/zerocopy-systems/zcp/validation"
	"github.com/zerocopy-systems/zcp/zcpapi"
)

// Request types
const (
	requestPing              = "ping"
	requestVerifyAttestation = "verify_attestation"
	requestVerifyPolicyProof = "verify_policy_proof"
	requestAttestationInfo   = "attestation_info"
)

// Request is the envelope for every request type. Exactly one attestation encoding is expected
// for the verify and info requests.
type Request struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`

	Attestation     *zcpapi.Attestation    `json:"attestation,omitempty"`
	AttestationCBOR []byte                 `json:"attestation_cbor,omitempty"`
	AttestationGzip zcpapi.AttestationGzip `json:"attestation_gzip,omitempty"`

	// Overrides the daemon's configured requirements for this request
	Requirements *validation.PolicyRequirements `json:"requirements,omitempty"`
}

// VerifyAttestationResponse is returned for verify_attestation
type VerifyAttestationResponse struct {
	Type             string                        `json:"type"`
	RequestID        string                        `json:"request_id"`
	Valid            bool                          `json:"valid"`
	Failure          validation.FailureKind        `json:"failure,omitempty"`
	SignatureValid   bool                          `json:"signature_valid"`
	KeyTrusted       bool                          `json:"key_trusted"`
	VersionValid     bool                          `json:"version_valid"`
	PolicyProofValid bool                          `json:"policy_proof_valid"`
	TrustedKey       string                        `json:"trusted_key,omitempty"`
	PolicyProof      *validation.PolicyProofResult `json:"policy_proof,omitempty"`
	Details          []string                      `json:"details"`
}

// VerifyPolicyProofResponse is returned for verify_policy_proof
type VerifyPolicyProofResponse struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	*validation.PolicyProofResult
}

// AttestationInfoResponse is returned for attestation_info
type AttestationInfoResponse struct {
	Type           string   `json:"type"`
	RequestID      string   `json:"request_id"`
	Version        string   `json:"version"`
	VersionMajor   *int     `json:"version_major,omitempty"`
	VersionMinor   *int     `json:"version_minor,omitempty"`
	IssuedAt       string   `json:"issued_at"`
	PayloadDigest  string   `json:"payload_digest,omitempty"`
	HasPolicyProof bool     `json:"has_policy_proof"`
	ImageID        string   `json:"image_id,omitempty"`
	MaxLeverage    *int64   `json:"max_leverage,omitempty"`
	AllowedPairs   []string `json:"allowed_pairs,omitempty"`
	MaxOrderSize   string   `json:"max_order_size,omitempty"`
}

// handleRequest dispatches one decoded request. It never fails; problems become error responses.
func (s *Server) handleRequest(raw []byte) any {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		s.logger.Error("failed to decode request", "error", err)
		return errorResponse(newRequestID(""), fmt.Sprintf("Failed to decode request: %v", err))
	}

	requestID := newRequestID(req.RequestID)
	logger := s.logger.With("request_id", requestID, "type", req.Type)
	logger.Info("received request")

	switch req.Type {
	case requestPing:
		return map[string]any{
			"type":       "pong",
			"request_id": requestID,
			"message":    "verifier is healthy",
			"timestamp":  time.Now().Unix(),
		}

	case requestVerifyAttestation:
		att, err := req.attestation()
		if err != nil {
			logger.Warn("invalid attestation", "error", err)
			return errorResponse(requestID, err.Error())
		}

		verifier := *s.verifier
		verifier.Logger = logger
		if req.Requirements != nil {
			verifier.Requirements = req.Requirements
		}
		result := verifier.Verify(att)

		return &VerifyAttestationResponse{
			Type:             "verify_attestation_response",
			RequestID:        requestID,
			Valid:            result.IsValid(),
			Failure:          result.Failure,
			SignatureValid:   result.SignatureValid,
			KeyTrusted:       result.KeyTrusted,
			VersionValid:     result.VersionValid,
			PolicyProofValid: result.PolicyProofValid,
			TrustedKey:       result.TrustedKeyName,
			PolicyProof:      result.PolicyProof,
			Details:          result.ValidationDetails,
		}

	case requestVerifyPolicyProof:
		att, err := req.attestation()
		if err != nil {
			logger.Warn("invalid attestation", "error", err)
			return errorResponse(requestID, err.Error())
		}

		requirements := s.verifier.Requirements
		if req.Requirements != nil {
			requirements = req.Requirements
		}
		result := validation.VerifyPolicyProof(att, requirements)
		logger.Info("policy proof checked", "valid", result.Valid, "failure", string(result.Failure))

		return &VerifyPolicyProofResponse{
			Type:              "verify_policy_proof_response",
			RequestID:         requestID,
			PolicyProofResult: result,
		}

	case requestAttestationInfo:
		att, err := req.attestation()
		if err != nil {
			logger.Warn("invalid attestation", "error", err)
			return errorResponse(requestID, err.Error())
		}
		return attestationInfo(requestID, att)

	default:
		return errorResponse(requestID, fmt.Sprintf("Unknown request type: %s", req.Type))
	}
}

// attestation returns the single attestation carried by the request
func (r *Request) attestation() (*zcpapi.Attestation, error) {
	encodings := 0
	for _, present := range []bool{r.Attestation != nil, len(r.AttestationCBOR) > 0, r.AttestationGzip != ""} {
		if present {
			encodings++
		}
	}
	if encodings != 1 {
		return nil, fmt.Errorf("expected exactly one of attestation, attestation_cbor, attestation_gzip; got %d", encodings)
	}

	switch {
	case r.Attestation != nil:
		return r.Attestation, nil
	case len(r.AttestationCBOR) > 0:
		return zcpapi.DecodeAttestationCBOR(r.AttestationCBOR)
	default:
		return r.AttestationGzip.Attestation()
	}
}

func attestationInfo(requestID string, att *zcpapi.Attestation) *AttestationInfoResponse {
	info := &AttestationInfoResponse{
		Type:           "attestation_info_response",
		RequestID:      requestID,
		Version:        att.Version,
		IssuedAt:       att.IssuedAt().Format(time.RFC3339Nano),
		HasPolicyProof: validation.HasPolicyProof(att),
	}

	if major, minor, ok := validation.GetVersionTuple(att); ok {
		info.VersionMajor = &major
		info.VersionMinor = &minor
	}
	if digest, err := core.ComputePayloadDigestHex(att.Payload); err == nil {
		info.PayloadDigest = digest
	}
	if info.HasPolicyProof {
		info.ImageID = att.PolicyProof.ImageID
	}
	if leverage, ok := validation.GetMaxLeverage(att); ok {
		info.MaxLeverage = &leverage
	}
	if pairs, ok := validation.GetAllowedPairs(att); ok {
		info.AllowedPairs = pairs
	}
	if size, ok := validation.GetMaxOrderSize(att); ok {
		info.MaxOrderSize = size.String()
	}

	return info
}

func errorResponse(requestID, message string) map[string]any {
	return map[string]any{
		"type":       "error",
		"request_id": requestID,
		"message":    message,
	}
}

// newRequestID keeps a well-formed client-supplied UUID and otherwise issues a new one
func newRequestID(clientID string) string {
	if id, err := uuid.Parse(clientID); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
