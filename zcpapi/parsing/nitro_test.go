package parsing

import (
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestParseNitroDocument(t *testing.T) {
	payload, err := cbor.Marshal(NitroAttestationDocument{
		ModuleID:  "i-0123-enc0123",
		Digest:    "SHA384",
		Timestamp: 1700000000123,
		PCRs: map[uint64][]byte{
			0: {0xaa, 0x01},
			1: {0xbb},
			2: {0xcc},
			3: {0xdd},
		},
		Certificate: []byte{0x30},
		CABundle:    [][]byte{{0x30, 0x01}},
		PublicKey:   []byte{0x02, 0x03},
		Nonce:       []byte("nonce"),
	})
	assert.NoError(t, err)

	doc, err := ParseNitroDocument(payload)
	assert.NoError(t, err)

	check.Equal(t, "i-0123-enc0123", doc.ModuleID)
	check.Equal(t, "SHA384", doc.Digest)
	check.True(t, doc.Timestamp.Equal(time.UnixMilli(1700000000123)))
	check.Equal(t, "aa01", doc.PCRs.ImageFileHash)
	check.Equal(t, "bb", doc.PCRs.KernelHash)
	check.Equal(t, "cc", doc.PCRs.ApplicationHash)
	check.Equal(t, []byte{0x02, 0x03}, doc.PublicKey)
	check.Equal(t, []byte("nonce"), doc.Nonce)
	check.Equal(t, 1, len(doc.CABundle))
}

func TestParseNitroDocument_Invalid(t *testing.T) {
	_, err := ParseNitroDocument([]byte("garbage"))
	check.Error(t, err)

	noModule, err := cbor.Marshal(NitroAttestationDocument{Timestamp: 1})
	assert.NoError(t, err)
	_, err = ParseNitroDocument(noModule)
	check.Error(t, err)
}

func TestFormatPCR(t *testing.T) {
	check.Equal(t, "", FormatPCR(nil))
	check.Equal(t, "00ff", FormatPCR([]byte{0x00, 0xff}))
}
