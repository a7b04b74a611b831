package cmm

import (
	"bytes"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding names reported in ParseResult.Encoding.
const (
	EncodingUTF8        = "utf-8"
	EncodingUTF16       = "utf-16"
	EncodingWindows1252 = "windows-1252"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}

	errNotThisEncoding = errors.New("not this encoding")
)

type textEncoding struct {
	name   string
	decode func([]byte) (string, error)
}

// encodings are tried in order, the first one that decodes to readable text wins.
var encodings = []textEncoding{
	{name: EncodingUTF8, decode: decodeUTF8},
	{name: EncodingUTF16, decode: decodeUTF16},
	{name: EncodingWindows1252, decode: decodeWindows1252},
}

// Decode converts report bytes to text, returning the encoding that succeeded.
// Bytes that no encoding turns into readable text yield ErrUndecodable.
func Decode(data []byte) (string, string, error) {
	const op = "Decode"

	for _, enc := range encodings {
		text, err := enc.decode(data)
		if err != nil {
			continue
		}
		text = trimEOF(text)
		if !readable(text) {
			continue
		}
		return strings.ReplaceAll(text, "\r\n", "\n"), enc.name, nil
	}
	return "", "", WrapReportError(op, ErrUndecodable, "tried utf-8, utf-16, windows-1252")
}

func decodeUTF8(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, bomUTF8)
	if !utf8.Valid(data) {
		return "", errNotThisEncoding
	}
	return string(data), nil
}

// decodeUTF16 only accepts input carrying a byte order mark.
func decodeUTF16(data []byte) (string, error) {
	var endian xunicode.Endianness
	switch {
	case bytes.HasPrefix(data, bomUTF16LE):
		endian = xunicode.LittleEndian
	case bytes.HasPrefix(data, bomUTF16BE):
		endian = xunicode.BigEndian
	default:
		return "", errNotThisEncoding
	}
	out, _, err := transform.Bytes(xunicode.UTF16(endian, xunicode.ExpectBOM).NewDecoder(), data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func decodeWindows1252(data []byte) (string, error) {
	out, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// trimEOF drops the DOS end-of-file marker (0x1A) and NUL padding that
// controller software leaves after the last line.
func trimEOF(s string) string {
	return strings.TrimRight(s, "\x1a\x00")
}

// readable rejects replacement characters and control characters other than
// common whitespace, which is what binary input decodes to.
func readable(s string) bool {
	for _, r := range s {
		switch {
		case r == utf8.RuneError:
			return false
		case r == '\t' || r == '\n' || r == '\r' || r == '\f':
		case unicode.IsControl(r):
			return false
		}
	}
	return true
}
