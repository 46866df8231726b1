package files

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

const DefaultEncoding = "utf8"

// codec converts between file bytes and the string carried in the envelope.
type codec struct {
	decode func([]byte) (string, error)
	encode func(string) ([]byte, error)
}

var utf8Codec = codec{
	decode: func(b []byte) (string, error) {
		if !utf8.Valid(b) {
			// same as the replacement a text editor would show
			return strings.ToValidUTF8(string(b), "�"), nil
		}
		return string(b), nil
	},
	encode: func(s string) ([]byte, error) { return []byte(s), nil },
}

var latin1Codec = codec{
	decode: func(b []byte) (string, error) { return charmap.ISO8859_1.NewDecoder().String(string(b)) },
	encode: func(s string) ([]byte, error) {
		out, err := charmap.ISO8859_1.NewEncoder().String(s)
		if err != nil {
			return nil, fmt.Errorf("content is not representable in latin1: %w", err)
		}
		return []byte(out), nil
	},
}

var codecs = map[string]codec{
	"utf8":   utf8Codec,
	"utf-8":  utf8Codec,
	"latin1": latin1Codec,
	"binary": latin1Codec,
	"base64": {
		decode: func(b []byte) (string, error) { return base64.StdEncoding.EncodeToString(b), nil },
		encode: func(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) },
	},
	"hex": {
		decode: func(b []byte) (string, error) { return hex.EncodeToString(b), nil },
		encode: func(s string) ([]byte, error) { return hex.DecodeString(s) },
	},
}

// lookupCodec returns the normalized encoding name and its codec. An empty
// name means utf8.
func lookupCodec(name string) (string, codec, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultEncoding
	}
	c, ok := codecs[name]
	return name, c, ok
}
