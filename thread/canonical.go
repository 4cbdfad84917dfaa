package thread

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"mime/quotedprintable"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Header lines that echo the archive layout and differ between copies of the
// same message.
var noiseLine = regexp.MustCompile(`(X-Folder:|X-Origin:|X-FileName:|Message-ID:).*\n`)

// Canonicalize turns raw file bytes into the text the parser works on: noise
// lines are removed, quoted-printable is unwrapped and the result is decoded
// as UTF-8, then Latin-1, then with replacement characters.
func Canonicalize(raw []byte) string {
	stripped := noiseLine.ReplaceAll(raw, nil)
	return decodeText(unwrapQuotedPrintable(stripped))
}

// Hash returns the lowercase hex SHA-256 of text.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// unwrapQuotedPrintable decodes line by line so a single line the decoder
// rejects is kept verbatim instead of failing the whole file.
func unwrapQuotedPrintable(b []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(b))
	for len(b) > 0 {
		line := b
		if i := bytes.IndexByte(b, '\n'); i >= 0 {
			line = b[:i+1]
		}
		b = b[len(line):]

		decoded, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(line)))
		if err != nil {
			out.Write(line)
			continue
		}
		out.Write(decoded)
	}
	return out.Bytes()
}

func decodeText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	if decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(b); err == nil {
		return string(decoded)
	}
	return strings.ToValidUTF8(string(b), "�")
}
