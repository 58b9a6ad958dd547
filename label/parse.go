package label

import (
	"mime"
	"net/textproto"
	"strings"

	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// HeaderKey is the header Google Takeout uses to carry a message's labels.
var HeaderKey = textproto.CanonicalMIMEHeaderKey("X-Gmail-Labels")

func init() {
	// Takeout archives accumulated over decades carry headers in legacy
	// charsets the default decoder refuses.
	charset.RegisterEncoding("ascii", unicode.UTF8)
	charset.RegisterEncoding("us-ascii", unicode.UTF8)
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("cp1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("latin1", charmap.ISO8859_1)
}

var wordDecoder = mime.WordDecoder{CharsetReader: charset.Reader}

// ParseValues splits raw X-Gmail-Labels header values into individual
// labels. Values are unfolded and MIME encoded-words decoded; commas inside
// double quotes do not split, and surrounding quotes are stripped.
func ParseValues(values []string) []string {
	var labels []string
	for _, value := range values {
		value = unfold(value)
		if decoded, err := wordDecoder.DecodeHeader(value); err == nil {
			value = decoded
		}
		for _, part := range splitQuoted(value, ',') {
			part = strings.TrimSpace(part)
			part = strings.Trim(part, `"`)
			part = strings.TrimSpace(part)
			if part != "" {
				labels = append(labels, part)
			}
		}
	}
	return labels
}

func unfold(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", "")
}

// splitQuoted splits on sep outside double-quoted sections, honouring
// backslash escapes inside them.
func splitQuoted(s string, sep rune) []string {
	var parts []string
	var cur strings.Builder
	inQuotes := false
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && inQuotes:
			cur.WriteRune(r)
			escaped = true
		case r == '"':
			cur.WriteRune(r)
			inQuotes = !inQuotes
		case r == sep && !inQuotes:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	parts = append(parts, cur.String())
	return parts
}
