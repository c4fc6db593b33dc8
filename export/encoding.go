package export

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Encoding is the character set of the exported file.
type Encoding string

const (
	UTF8        Encoding = "utf-8"
	Windows1252 Encoding = "windows-1252"
)

func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "utf-8", "utf8":
		return UTF8, nil
	case "windows-1252", "cp1252":
		return Windows1252, nil
	default:
		return "", fmt.Errorf("unsupported encoding %q", s)
	}
}

// encoder returns the transformer for e. Runes missing from the target
// charset are replaced instead of failing the row.
func (e Encoding) encoder() *encoding.Encoder {
	if e == Windows1252 {
		return encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder())
	}

	return encoding.Nop.NewEncoder()
}

// ParseDelimiter accepts the two separators the downstream loaders read.
func ParseDelimiter(s string) (string, error) {
	switch s {
	case "", ";":
		return ";", nil
	case ",":
		return ",", nil
	default:
		return "", fmt.Errorf("unsupported delimiter %q (expected ; or ,)", s)
	}
}
