package label

import "strings"

// FallbackSegment replaces a path segment that sanitizing left empty.
const FallbackSegment = "unnamed"

// Sanitize maps one label path segment onto the characters IMAP servers and
// filesystems agree on: ASCII letters, digits, '-' and '_'. A '.' is mapped
// to '_' like any other character: it serves as the hierarchy delimiter on
// many IMAP servers, and a segment containing it would split into extra
// mailbox levels there. Everything else becomes an underscore, runs of
// underscores collapse and leading or trailing underscores are stripped.
// The result is stable under repeated application:
// Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(segment string) string {
	var b strings.Builder
	b.Grow(len(segment))

	underscore := false
	for _, r := range segment {
		if allowed(r) && r != '_' {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore {
			b.WriteByte('_')
			underscore = true
		}
	}

	s := strings.Trim(b.String(), "_")
	if s == "" {
		return FallbackSegment
	}
	return s
}

func allowed(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_':
		return true
	}
	return false
}

// FolderFromLabel turns a single label into a sanitized folder path. A '/'
// inside the label introduces a nested mailbox level, so "Work/Invoices"
// becomes the folder Work/Invoices with two hierarchy segments.
func FolderFromLabel(name string) string {
	parts := strings.Split(name, "/")
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		segments = append(segments, Sanitize(part))
	}
	if len(segments) == 0 {
		return FallbackSegment
	}
	return strings.Join(segments, "/")
}
