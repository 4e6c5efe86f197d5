package truststore

import (
	"crypto/x509"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/zerocopy-systems/zcp/zcpapi"
	"github.com/zerocopy-systems/zcp/zcpapi/parsing"
)

// NitroOptions configures enrollment of enclave keys from AWS Nitro attestation documents.
type NitroOptions struct {
	// Known-good enclave builds; required
	PCRSets []PCRSet

	// Root pool for the certificate chain; nil uses the AWS Nitro root
	Roots *x509.CertPool

	// Entry name; defaults to the document's module ID
	Name string
}

// NitroEnrollmentResult contains validation results for a Nitro attestation document
type NitroEnrollmentResult struct {
	PCRsValid         bool
	CertificateValid  bool
	SignatureValid    bool
	PublicKeyValid    bool
	MatchedPCRSet     int
	Document          *zcpapi.NitroDocument
	ValidationDetails []string
}

// IsValid returns true if all enrollment checks passed
func (r *NitroEnrollmentResult) IsValid() bool {
	return r.PCRsValid && r.CertificateValid && r.SignatureValid && r.PublicKeyValid
}

// EnrollNitroAttestation validates an AWS Nitro attestation document (untagged COSE_Sign1
// bytes) and, when every check passes, returns a trust store entry for the secp256k1 key
// the enclave published in the document's public_key field.
//
// The entry is nil when any check fails; result.ValidationDetails says why.
// An error means the document could not be parsed at all.
func EnrollNitroAttestation(coseBytes []byte, opts NitroOptions) (*Entry, *NitroEnrollmentResult, error) {
	msg, err := parsing.ParseCOSESign1(coseBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parse COSE_Sign1: %w", err)
	}

	doc, err := parsing.ParseNitroDocument(msg.Payload)
	if err != nil {
		return nil, nil, err
	}

	if len(opts.PCRSets) == 0 {
		return nil, nil, fmt.Errorf("no PCR sets configured for Nitro enrollment")
	}

	roots := opts.Roots
	if roots == nil {
		roots, err = NitroRootPool()
		if err != nil {
			return nil, nil, err
		}
	}

	result := &NitroEnrollmentResult{
		MatchedPCRSet:     -1,
		Document:          doc,
		ValidationDetails: []string{},
	}

	// Validate PCRs
	pcrMatch, matchedSet := ValidatePCRs(doc.PCRs, opts.PCRSets)
	result.PCRsValid = pcrMatch
	result.MatchedPCRSet = matchedSet
	if !pcrMatch {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("PCR0: %s (no match)", doc.PCRs.ImageFileHash))
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("PCR1: %s (no match)", doc.PCRs.KernelHash))
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("PCR2: %s (no match)", doc.PCRs.ApplicationHash))
	} else {
		result.ValidationDetails = append(result.ValidationDetails, "PCR measurements valid")
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Matched PCR set: #%d (commit: %s)",
			matchedSet, opts.PCRSets[matchedSet].CommitHash))
	}

	// Validate certificate chain at the attestation timestamp
	var cert *x509.Certificate
	switch {
	case len(doc.Certificate) == 0:
		result.ValidationDetails = append(result.ValidationDetails, "Missing certificate")
	case len(doc.CABundle) == 0:
		result.ValidationDetails = append(result.ValidationDetails, "Missing CA bundle")
	default:
		cert, err = ValidateCertificateChain(doc.Certificate, doc.CABundle, roots, doc.Timestamp)
		if err != nil {
			result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Certificate chain validation failed: %v", err))
		} else {
			result.CertificateValid = true
			result.ValidationDetails = append(result.ValidationDetails, "Certificate chain verified")
		}
	}

	// Verify COSE signature with the leaf certificate
	if cert != nil {
		if err := VerifyCOSESignature(msg, cert); err != nil {
			result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("COSE signature verification failed: %v", err))
		} else {
			result.SignatureValid = true
			result.ValidationDetails = append(result.ValidationDetails, "COSE signature verified")
		}
	} else {
		result.ValidationDetails = append(result.ValidationDetails, "COSE signature not checked: no valid certificate")
	}

	// The enclave publishes its secp256k1 signing key in public_key
	var pubKey *secp256k1.PublicKey
	if len(doc.PublicKey) == 0 {
		result.ValidationDetails = append(result.ValidationDetails, "Public key missing from attestation")
	} else if pubKey, err = secp256k1.ParsePubKey(doc.PublicKey); err != nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Public key is not a secp256k1 point: %v", err))
	} else {
		result.PublicKeyValid = true
		result.ValidationDetails = append(result.ValidationDetails, "Enclave secp256k1 key extracted")
	}

	if !result.IsValid() {
		return nil, result, nil
	}

	name := opts.Name
	if name == "" {
		name = doc.ModuleID
	}
	entry := &Entry{
		Name:      name,
		PublicKey: hex.EncodeToString(pubKey.SerializeCompressed()),
	}
	if imageID := opts.PCRSets[matchedSet].ImageID; imageID != "" {
		entry.ImageIDs = []string{imageID}
	}

	return entry, result, nil
}

// EnrollNitro validates the document and adds the resulting entry to the store.
func (s *Store) EnrollNitro(coseBytes []byte, opts NitroOptions) (*NitroEnrollmentResult, error) {
	entry, result, err := EnrollNitroAttestation(coseBytes, opts)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return result, nil
	}
	if err := s.Add(*entry); err != nil {
		return result, fmt.Errorf("enroll %s: %w", entry.Name, err)
	}
	return result, nil
}
