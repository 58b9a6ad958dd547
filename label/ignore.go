package label

import "strings"

// DefaultIgnored lists archive housekeeping labels that say nothing about
// where a message belongs. Gmail attaches these to nearly every message, so
// letting them win folder resolution would collapse the whole taxonomy.
func DefaultIgnored() []string {
	return []string{
		"Opened",
		"Archived",
		"Unread",
		"Important",
		"Category Forums",
		"Category Personal",
		"Category Promotions",
		"Category Purchases",
		"Category Travel",
		"Category Updates",
		"Read Receipt Sent",
		"IMAP_NOTJUNK",
		"IMAP_NonJunk",
		"IMAP_receipt-handled",
	}
}

// IgnoreSet holds labels excluded from folder resolution. Matching is exact
// and case-sensitive.
type IgnoreSet map[string]struct{}

func NewIgnoreSet(labels []string) IgnoreSet {
	set := make(IgnoreSet, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		set[l] = struct{}{}
	}
	return set
}

// Filter returns the labels not in the set, preserving input order.
func (s IgnoreSet) Filter(labels []string) []string {
	if len(s) == 0 {
		return labels
	}
	kept := make([]string, 0, len(labels))
	for _, l := range labels {
		if _, drop := s[l]; !drop {
			kept = append(kept, l)
		}
	}
	return kept
}
