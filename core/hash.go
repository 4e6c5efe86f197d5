package core

import (
	"crypto/sha256"
	"fmt"
)

// ComputeLegacyFingerprint computes the fingerprint of a v1 .zcp proof.
// Producers and verifiers must agree on it byte for byte, so the field order is fixed.
//
// Formula: SHA256(version + "|" + tx_hash + "|" + enclave_measurement + "|" +
// timestamp_ns + "|" + latency_us + "|" + jitter_us)
//
// The signer signature and AI risk score are not part of the fingerprint.
func ComputeLegacyFingerprint(version uint8, txHash, enclaveMeasurement string, timestampNS uint64, latencyUS, jitterUS uint32) string {
	data := fmt.Sprintf("%d|%s|%s|%d|%d|%d", version, txHash, enclaveMeasurement, timestampNS, latencyUS, jitterUS)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// ComputePayloadDigestHex returns the hex-encoded canonical payload digest.
// Reports and CLIs print it so operators can compare against enclave logs.
func ComputePayloadDigestHex(raw []byte) (string, error) {
	digest, err := PayloadDigest(raw)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", digest), nil
}
