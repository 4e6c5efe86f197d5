package truststore

import (
	"crypto/ecdsa"
	"crypto/x509"
	"fmt"

	"github.com/veraison/go-cose"

	"github.com/zerocopy-systems/zcp/zcpapi/parsing"
)

// VerifyCOSESignature verifies a COSE_Sign1 signature with the public key of cert.
// AWS Nitro signs attestation documents with ES384 (ECDSA P-384 with SHA-384).
func VerifyCOSESignature(msg *parsing.COSESign1, cert *x509.Certificate) error {
	ecdsaKey, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("certificate public key is not ECDSA")
	}

	sigStructure, err := msg.SigStructure()
	if err != nil {
		return err
	}

	verifier, err := cose.NewVerifier(cose.AlgorithmES384, ecdsaKey)
	if err != nil {
		return fmt.Errorf("create verifier: %w", err)
	}

	if err := verifier.Verify(sigStructure, msg.Signature); err != nil {
		return fmt.Errorf("COSE signature verification failed: %w", err)
	}

	return nil
}
