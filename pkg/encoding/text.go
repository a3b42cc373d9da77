// Package encoding decodes the legacy code pages names are stored in.
package encoding

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

// ErrUnknownEncoding is returned for an encoding name that is not supported.
var ErrUnknownEncoding = errors.New("unknown text encoding")

var encodings = map[string]encoding.Encoding{
	"cp1252":    charmap.Windows1252,
	"latin1":    charmap.ISO8859_1,
	"cp1251":    charmap.Windows1251,
	"euc-kr":    korean.EUCKR,
	"shift-jis": japanese.ShiftJIS,
	"euc-jp":    japanese.EUCJP,
}

// Decoder converts stored names to UTF-8.
// The zero value passes bytes through unchanged.
type Decoder struct {
	enc encoding.Encoding
}

// NewDecoder returns a decoder for the named encoding.
// "" and "utf-8" select pass-through.
func NewDecoder(name string) (*Decoder, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "", "utf-8", "utf8":
		return &Decoder{}, nil
	}
	enc, ok := encodings[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
	return &Decoder{enc: enc}, nil
}

// Names returns the supported encoding names.
func Names() []string {
	out := []string{"utf-8"}
	for name := range encodings {
		out = append(out, name)
	}
	return out
}

// String decodes s. Valid UTF-8 and undecodable input are returned as-is.
func (d *Decoder) String(s string) string {
	s = TrimNullString([]byte(s))
	if d == nil || d.enc == nil || utf8.ValidString(s) {
		return s
	}
	result, _, err := transform.String(d.enc.NewDecoder(), s)
	if err != nil {
		return s
	}
	return result
}

// TrimNullBytes removes trailing null bytes from a byte slice.
func TrimNullBytes(data []byte) []byte {
	return bytes.TrimRight(data, "\x00")
}

// TrimNullString removes trailing null bytes and converts to string.
func TrimNullString(data []byte) string {
	return string(TrimNullBytes(data))
}
