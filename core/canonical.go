package core

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"
)

// CanonicalPayload re-serializes a raw JSON payload into the canonical form that enclaves sign.
//
// Canonical form:
//   - compact JSON, no insignificant whitespace
//   - object keys sorted by byte order, duplicate keys rejected
//   - strings escaped minimally: quote, backslash and control characters only
//   - integer literals emitted verbatim (no precision loss)
//   - other numbers emitted as the shortest float64 form, always with a fraction or
//     exponent ("1.0", "1.5", "1e300", "1e-7")
//
// This is the output of serde_json's Value::to_string, which enclave signers hash.
// Invalid UTF-8 and unpaired UTF-16 surrogate escapes are rejected rather than replaced,
// so distinct payloads never share a canonical form.
//
// An empty payload canonicalizes to "null".
func CanonicalPayload(raw json.RawMessage) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("null"), nil
	}
	if !utf8.Valid(raw) {
		return nil, errors.New("decode payload: invalid UTF-8")
	}
	if err := checkSurrogateEscapes(raw); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	value, err := decodeStrict(dec)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("decode payload: trailing data after JSON value")
	}

	return CanonicalValue(value)
}

// CanonicalValue encodes an already-decoded value in canonical form.
// It accepts the shapes produced by encoding/json (with UseNumber) and fxamacker/cbor.
func CanonicalValue(value any) ([]byte, error) {
	var buf bytes.Buffer
	if err := appendCanonical(&buf, value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PayloadDigest returns SHA-256 over the canonical payload encoding.
func PayloadDigest(raw json.RawMessage) ([32]byte, error) {
	canonical, err := CanonicalPayload(raw)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(canonical), nil
}

// SigningHash returns the 32-byte message hash an enclave signs for a payload.
//
// Formula: SHA256(SHA256(canonical_payload))
//
// The enclave signer hashes the payload digest once more inside its ECDSA implementation,
// so the curve operation sees the digest of the digest.
func SigningHash(raw json.RawMessage) ([]byte, error) {
	digest, err := PayloadDigest(raw)
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(digest[:])
	return hash[:], nil
}

// decodeStrict decodes one JSON value token by token so that duplicate object keys are detected.
func decodeStrict(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := make(map[string]any)
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keyTok)
				}
				if _, dup := obj[key]; dup {
					return nil, fmt.Errorf("duplicate object key %q", key)
				}
				v, err := decodeStrict(dec)
				if err != nil {
					return nil, err
				}
				obj[key] = v
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := make([]any, 0)
			for dec.More() {
				v, err := decodeStrict(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", t)
		}
	default:
		return tok, nil
	}
}

func appendCanonical(buf *bytes.Buffer, value any) error {
	switch v := value.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(v))
	case string:
		return appendString(buf, v)
	case []byte:
		return appendString(buf, base64.StdEncoding.EncodeToString(v))
	case json.Number:
		return appendNumber(buf, v)
	case float64:
		return appendFloat(buf, v)
	case float32:
		return appendFloat(buf, float64(v))
	case int:
		buf.WriteString(strconv.FormatInt(int64(v), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(v, 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(v, 10))
	case big.Int:
		buf.WriteString(v.String())
	case *big.Int:
		if v == nil {
			buf.WriteString("null")
			return nil
		}
		buf.WriteString(v.String())
	case []any:
		buf.WriteByte('[')
		for i, elem := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := appendCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		return appendObject(buf, v)
	case map[any]any:
		// CBOR maps decode with interface keys; only text keys have a JSON form
		obj := make(map[string]any, len(v))
		for k, elem := range v {
			key, ok := k.(string)
			if !ok {
				return fmt.Errorf("canonical: unsupported map key type %T", k)
			}
			obj[key] = elem
		}
		return appendObject(buf, obj)
	default:
		return fmt.Errorf("canonical: unsupported value type %T", value)
	}
	return nil
}

func appendObject(buf *bytes.Buffer, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := appendString(buf, k); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := appendCanonical(buf, obj[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

const hexDigits = "0123456789abcdef"

func appendString(buf *bytes.Buffer, s string) error {
	if !utf8.ValidString(s) {
		return errors.New("canonical: string is not valid UTF-8")
	}

	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\t':
			buf.WriteString(`\t`)
		case '\n':
			buf.WriteString(`\n`)
		case '\f':
			buf.WriteString(`\f`)
		case '\r':
			buf.WriteString(`\r`)
		default:
			if c < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hexDigits[c>>4])
				buf.WriteByte(hexDigits[c&0xf])
				continue
			}
			buf.WriteByte(c)
		}
	}
	buf.WriteByte('"')
	return nil
}

func appendNumber(buf *bytes.Buffer, n json.Number) error {
	s := n.String()
	if isIntegerLiteral(s) {
		if s == "-0" {
			// Negative zero has no integer form and reads back as a float
			buf.WriteString("-0.0")
			return nil
		}
		buf.WriteString(s)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("canonical: invalid number %q: %w", s, err)
	}
	return appendFloat(buf, f)
}

// appendFloat writes the shortest decimal that round-trips to f. Values whose decimal
// point falls within 16 digits of the first digit print positionally, others in
// scientific form without a '+' on the exponent.
func appendFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("canonical: unsupported float value %v", f)
	}
	if math.Signbit(f) {
		buf.WriteByte('-')
		f = -f
	}
	if f == 0 {
		buf.WriteString("0.0")
		return nil
	}

	// "d.ddde±XX" carries the shortest round-trip digits
	mantissa, exp, _ := strings.Cut(strconv.FormatFloat(f, 'e', -1, 64), "e")
	digits := strings.Replace(mantissa, ".", "", 1)
	e, err := strconv.Atoi(exp)
	if err != nil {
		return fmt.Errorf("canonical: encode float: %w", err)
	}

	n := len(digits)
	point := e + 1
	switch {
	case n <= point && point <= 16:
		buf.WriteString(digits)
		buf.WriteString(strings.Repeat("0", point-n))
		buf.WriteString(".0")
	case 0 < point && point <= 16:
		buf.WriteString(digits[:point])
		buf.WriteByte('.')
		buf.WriteString(digits[point:])
	case -5 < point && point <= 0:
		buf.WriteString("0.")
		buf.WriteString(strings.Repeat("0", -point))
		buf.WriteString(digits)
	default:
		buf.WriteByte(digits[0])
		if n > 1 {
			buf.WriteByte('.')
			buf.WriteString(digits[1:])
		}
		buf.WriteByte('e')
		buf.WriteString(strconv.Itoa(point - 1))
	}
	return nil
}

// checkSurrogateEscapes rejects \u escapes that encode half of a UTF-16 surrogate pair
// without its partner. Malformed JSON is left for the decoder to report.
func checkSurrogateEscapes(raw []byte) error {
	inString := false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			continue
		}
		switch c {
		case '"':
			inString = false
		case '\\':
			if i+1 >= len(raw) {
				return nil
			}
			if raw[i+1] != 'u' {
				i++
				continue
			}
			r, ok := parseEscapeUnit(raw[i:])
			if !ok {
				return nil
			}
			i += 5
			switch {
			case r >= 0xD800 && r <= 0xDBFF:
				low, ok := parseEscapeUnit(raw[i+1:])
				if !ok || low < 0xDC00 || low > 0xDFFF {
					return fmt.Errorf("unpaired surrogate escape \\u%04x", r)
				}
				i += 6
			case r >= 0xDC00 && r <= 0xDFFF:
				return fmt.Errorf("unpaired surrogate escape \\u%04x", r)
			}
		}
	}
	return nil
}

// parseEscapeUnit reads a "\uXXXX" escape at the start of b.
func parseEscapeUnit(b []byte) (rune, bool) {
	if len(b) < 6 || b[0] != '\\' || b[1] != 'u' {
		return 0, false
	}
	v, err := strconv.ParseUint(string(b[2:6]), 16, 16)
	if err != nil {
		return 0, false
	}
	return rune(v), true
}

func isIntegerLiteral(s string) bool {
	return s != "" && !strings.ContainsAny(s, ".eE")
}
