package truststore

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/veraison/go-cose"

	"github.com/zerocopy-systems/zcp/internal/testutil"
	"github.com/zerocopy-systems/zcp/zcpapi/parsing"
)

// nitroFixture is a self-signed P-384 root and a leaf that signs attestation documents
type nitroFixture struct {
	rootDER []byte
	roots   *x509.CertPool
	leafDER []byte
	leafKey *ecdsa.PrivateKey
	issued  time.Time
}

func newNitroFixture(t *testing.T) *nitroFixture {
	t.Helper()
	issued := time.Now().UTC().Truncate(time.Millisecond)

	rootKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	assert.NoError(t, err)
	rootTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test.nitro-enclaves"},
		NotBefore:             issued.Add(-time.Hour),
		NotAfter:              issued.Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTemplate, rootTemplate, &rootKey.PublicKey, rootKey)
	assert.NoError(t, err)
	rootCert, err := x509.ParseCertificate(rootDER)
	assert.NoError(t, err)

	leafKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	assert.NoError(t, err)
	leafTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "i-0123456789abcdef0-enc0123456789abcdef"},
		NotBefore:    issued.Add(-time.Hour),
		NotAfter:     issued.Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, rootCert, &leafKey.PublicKey, rootKey)
	assert.NoError(t, err)

	roots := x509.NewCertPool()
	roots.AddCert(rootCert)

	return &nitroFixture{
		rootDER: rootDER,
		roots:   roots,
		leafDER: leafDER,
		leafKey: leafKey,
		issued:  issued,
	}
}

func testPCR(b byte) []byte {
	return bytes.Repeat([]byte{b}, 48)
}

func (f *nitroFixture) document(publicKey []byte) parsing.NitroAttestationDocument {
	return parsing.NitroAttestationDocument{
		ModuleID:    "i-0123456789abcdef0-enc0123456789abcdef",
		Digest:      "SHA384",
		Timestamp:   uint64(f.issued.UnixMilli()),
		PCRs:        map[uint64][]byte{0: testPCR(0xaa), 1: testPCR(0xbb), 2: testPCR(0xcc)},
		Certificate: f.leafDER,
		CABundle:    [][]byte{f.rootDER},
		PublicKey:   publicKey,
	}
}

func (f *nitroFixture) pcrSet() PCRSet {
	return PCRSet{
		PCR0:       hex.EncodeToString(testPCR(0xaa)),
		PCR1:       hex.EncodeToString(testPCR(0xbb)),
		PCR2:       hex.EncodeToString(testPCR(0xcc)),
		CommitHash: "abc123",
		ImageID:    testutil.TestImageID,
	}
}

// sign wraps doc in an untagged COSE_Sign1 signed by the leaf key
func (f *nitroFixture) sign(t *testing.T, doc parsing.NitroAttestationDocument, tamper bool) []byte {
	t.Helper()

	payload, err := cbor.Marshal(doc)
	assert.NoError(t, err)
	protected, err := cbor.Marshal(map[int]int{1: -35})
	assert.NoError(t, err)

	msg := &parsing.COSESign1{Protected: protected, Payload: payload}
	sigStructure, err := msg.SigStructure()
	assert.NoError(t, err)

	signer, err := cose.NewSigner(cose.AlgorithmES384, f.leafKey)
	assert.NoError(t, err)
	signature, err := signer.Sign(rand.Reader, sigStructure)
	assert.NoError(t, err)
	if tamper {
		signature[0] ^= 0xff
	}

	coseBytes, err := cbor.Marshal([]any{protected, map[any]any{}, payload, signature})
	assert.NoError(t, err)
	return coseBytes
}

func TestEnrollNitroAttestation_Valid(t *testing.T) {
	fx := newNitroFixture(t)
	enclave := testutil.NewSigner(t)
	coseBytes := fx.sign(t, fx.document(enclave.Key.PubKey().SerializeCompressed()), false)

	entry, result, err := EnrollNitroAttestation(coseBytes, NitroOptions{
		PCRSets: []PCRSet{fx.pcrSet()},
		Roots:   fx.roots,
	})
	assert.NoError(t, err)
	assert.NotNil(t, result)

	check.True(t, result.PCRsValid)
	check.True(t, result.CertificateValid)
	check.True(t, result.SignatureValid)
	check.True(t, result.PublicKeyValid)
	check.True(t, result.IsValid())
	check.Equal(t, 0, result.MatchedPCRSet)
	check.Equal(t, fx.issued, result.Document.Timestamp)

	assert.NotNil(t, entry)
	check.Equal(t, "i-0123456789abcdef0-enc0123456789abcdef", entry.Name)
	check.Equal(t, enclave.PublicKeyHex(), entry.PublicKey)
	check.Equal(t, []string{testutil.TestImageID}, entry.ImageIDs)
}

func TestEnrollNitroAttestation_UncompressedKeyAndName(t *testing.T) {
	fx := newNitroFixture(t)
	enclave := testutil.NewSigner(t)
	coseBytes := fx.sign(t, fx.document(enclave.Key.PubKey().SerializeUncompressed()), false)

	entry, _, err := EnrollNitroAttestation(coseBytes, NitroOptions{
		PCRSets: []PCRSet{fx.pcrSet()},
		Roots:   fx.roots,
		Name:    "prod-enclave-1",
	})
	assert.NoError(t, err)
	assert.NotNil(t, entry)
	check.Equal(t, "prod-enclave-1", entry.Name)
	check.Equal(t, enclave.PublicKeyHex(), entry.PublicKey)
}

func TestEnrollNitroAttestation_Failures(t *testing.T) {
	fx := newNitroFixture(t)
	enclave := testutil.NewSigner(t)
	otherRoots := newNitroFixture(t).roots

	mismatched := fx.pcrSet()
	mismatched.PCR2 = hex.EncodeToString(testPCR(0xdd))

	tests := []struct {
		name          string
		publicKey     []byte
		tamper        bool
		pcrSet        PCRSet
		roots         *x509.CertPool
		wantPCRs      bool
		wantCert      bool
		wantSignature bool
		wantPublicKey bool
	}{
		{
			name:          "unknown PCRs",
			publicKey:     enclave.Key.PubKey().SerializeCompressed(),
			pcrSet:        mismatched,
			roots:         fx.roots,
			wantCert:      true,
			wantSignature: true,
			wantPublicKey: true,
		},
		{
			name:          "untrusted root",
			publicKey:     enclave.Key.PubKey().SerializeCompressed(),
			pcrSet:        fx.pcrSet(),
			roots:         otherRoots,
			wantPCRs:      true,
			wantPublicKey: true,
		},
		{
			name:          "tampered signature",
			publicKey:     enclave.Key.PubKey().SerializeCompressed(),
			tamper:        true,
			pcrSet:        fx.pcrSet(),
			roots:         fx.roots,
			wantPCRs:      true,
			wantCert:      true,
			wantPublicKey: true,
		},
		{
			name:          "missing public key",
			pcrSet:        fx.pcrSet(),
			roots:         fx.roots,
			wantPCRs:      true,
			wantCert:      true,
			wantSignature: true,
		},
		{
			name:          "public key not on secp256k1",
			publicKey:     []byte{0x02, 0x01, 0x02},
			pcrSet:        fx.pcrSet(),
			roots:         fx.roots,
			wantPCRs:      true,
			wantCert:      true,
			wantSignature: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coseBytes := fx.sign(t, fx.document(tt.publicKey), tt.tamper)

			entry, result, err := EnrollNitroAttestation(coseBytes, NitroOptions{
				PCRSets: []PCRSet{tt.pcrSet},
				Roots:   tt.roots,
			})
			assert.NoError(t, err)
			assert.NotNil(t, result)

			check.Nil(t, entry)
			check.False(t, result.IsValid())
			check.Equal(t, tt.wantPCRs, result.PCRsValid)
			check.Equal(t, tt.wantCert, result.CertificateValid)
			check.Equal(t, tt.wantSignature, result.SignatureValid)
			check.Equal(t, tt.wantPublicKey, result.PublicKeyValid)
			check.True(t, len(result.ValidationDetails) > 0)
		})
	}
}

func TestEnrollNitroAttestation_Errors(t *testing.T) {
	fx := newNitroFixture(t)
	enclave := testutil.NewSigner(t)
	coseBytes := fx.sign(t, fx.document(enclave.Key.PubKey().SerializeCompressed()), false)

	_, _, err := EnrollNitroAttestation([]byte("not cbor"), NitroOptions{PCRSets: []PCRSet{fx.pcrSet()}})
	check.Error(t, err)

	_, _, err = EnrollNitroAttestation(coseBytes, NitroOptions{Roots: fx.roots})
	check.Error(t, err)

	noModule := fx.document(enclave.Key.PubKey().SerializeCompressed())
	noModule.ModuleID = ""
	_, _, err = EnrollNitroAttestation(fx.sign(t, noModule, false), NitroOptions{PCRSets: []PCRSet{fx.pcrSet()}})
	check.Error(t, err)
}

func TestStore_EnrollNitro(t *testing.T) {
	fx := newNitroFixture(t)
	enclave := testutil.NewSigner(t)
	coseBytes := fx.sign(t, fx.document(enclave.Key.PubKey().SerializeCompressed()), false)
	opts := NitroOptions{PCRSets: []PCRSet{fx.pcrSet()}, Roots: fx.roots}

	store, err := New()
	assert.NoError(t, err)

	result, err := store.EnrollNitro(coseBytes, opts)
	assert.NoError(t, err)
	check.True(t, result.IsValid())

	entry, ok := store.Lookup(enclave.Key.PubKey())
	check.True(t, ok)
	check.Equal(t, []string{testutil.TestImageID}, entry.ImageIDs)

	// Enrolling the same enclave twice collides on key and name
	_, err = store.EnrollNitro(coseBytes, opts)
	check.Error(t, err)
	check.Equal(t, 1, store.Len())
}

func TestNitroRootPool(t *testing.T) {
	roots, err := NitroRootPool()
	check.NoError(t, err)
	check.NotNil(t, roots)
}

func TestValidatePCRs(t *testing.T) {
	known := []PCRSet{
		{PCR0: "aa", PCR1: "bb", PCR2: "cc"},
		{PCR0: "dd", PCR1: "ee", PCR2: "ff"},
	}

	tests := []struct {
		name      string
		pcr0      string
		wantMatch bool
		wantIndex int
	}{
		{"first set", "aa", true, 0},
		{"case insensitive", "AA", true, 0},
		{"no match", "00", false, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pcrs := parsing.ExtractPCRs(nil)
			pcrs.ImageFileHash = tt.pcr0
			pcrs.KernelHash = "bb"
			pcrs.ApplicationHash = "cc"
			match, index := ValidatePCRs(pcrs, known)
			check.Equal(t, tt.wantMatch, match)
			check.Equal(t, tt.wantIndex, index)
		})
	}
}
