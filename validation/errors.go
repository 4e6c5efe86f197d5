package validation

import "errors"

// FailureKind names why a verification did not pass.
type FailureKind string

const (
	FailureNone                    FailureKind = ""
	FailureSignatureInvalid        FailureKind = "signature_invalid"
	FailureKeyUntrusted            FailureKind = "key_untrusted"
	FailurePolicyProofMissing      FailureKind = "policy_proof_missing"
	FailureEmptyReceipt            FailureKind = "empty_receipt"
	FailureImageIDMismatch         FailureKind = "image_id_mismatch"
	FailureMissingRequiredProperty FailureKind = "missing_required_property"
	FailureVersionParse            FailureKind = "version_parse_error"
	FailureVersionUnsupported      FailureKind = "version_unsupported"
)

var (
	ErrSignatureInvalid        = errors.New("signature invalid")
	ErrKeyUntrusted            = errors.New("enclave key not trusted")
	ErrPolicyProofMissing      = errors.New("policy proof missing")
	ErrEmptyReceipt            = errors.New("empty receipt")
	ErrImageIDMismatch         = errors.New("image id mismatch")
	ErrMissingRequiredProperty = errors.New("missing required property")
	ErrVersionParse            = errors.New("version parse error")
	ErrVersionUnsupported      = errors.New("version unsupported")
)

var failureErrors = map[FailureKind]error{
	FailureSignatureInvalid:        ErrSignatureInvalid,
	FailureKeyUntrusted:            ErrKeyUntrusted,
	FailurePolicyProofMissing:      ErrPolicyProofMissing,
	FailureEmptyReceipt:            ErrEmptyReceipt,
	FailureImageIDMismatch:         ErrImageIDMismatch,
	FailureMissingRequiredProperty: ErrMissingRequiredProperty,
	FailureVersionParse:            ErrVersionParse,
	FailureVersionUnsupported:      ErrVersionUnsupported,
}

// Err returns the sentinel error for the kind, or nil for FailureNone.
func (k FailureKind) Err() error {
	return failureErrors[k]
}
