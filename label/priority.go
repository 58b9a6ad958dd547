package label

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// DefaultFolder receives messages whose label set is empty after filtering.
const DefaultFolder = "Other"

// Order ranks labels, highest priority first. Labels not listed rank below
// every listed label and tie with each other at the bottom.
type Order struct {
	labels []string
	index  map[string]int
}

// NewOrder builds an Order from a label list. Blank entries are dropped and
// duplicates keep their first position, so the ranking is a strict total
// preference over the listed labels.
func NewOrder(labels []string) *Order {
	o := &Order{index: make(map[string]int, len(labels))}
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if _, seen := o.index[l]; seen {
			continue
		}
		o.index[l] = len(o.labels)
		o.labels = append(o.labels, l)
	}
	return o
}

// DefaultOrder ranks Sent above everything else, matching the behaviour of
// running without a priority file.
func DefaultOrder() *Order {
	return NewOrder([]string{"Sent"})
}

// LoadOrder reads a priority file: plain text, one label per line, highest
// priority first.
func LoadOrder(path string) (*Order, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open priority file: %w", err)
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		labels = append(labels, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read priority file: %w", err)
	}

	return NewOrder(labels), nil
}

// Len reports how many labels are listed.
func (o *Order) Len() int {
	return len(o.labels)
}

// Resolve picks the single winning label out of a set. Listed labels win by
// position; when none of the set is listed, the unlisted labels tie at the
// bottom and the lexicographically smallest string wins, so the converter
// and the uploader always reach the same answer for the same set. The
// second return value is false when the set is empty.
func (o *Order) Resolve(labels []string) (string, bool) {
	winner := ""
	winnerIdx := -1
	for _, l := range labels {
		if l == "" {
			continue
		}
		idx, listed := o.index[l]
		if !listed {
			idx = len(o.labels)
		}
		switch {
		case winnerIdx == -1:
			winner, winnerIdx = l, idx
		case idx < winnerIdx:
			winner, winnerIdx = l, idx
		case idx == winnerIdx && l < winner:
			winner = l
		}
	}
	return winner, winnerIdx != -1
}

// Folder resolves a label set all the way to a folder path, falling back to
// DefaultFolder when no label is left to decide on.
func (o *Order) Folder(labels []string) string {
	l, ok := o.Resolve(labels)
	if !ok {
		return DefaultFolder
	}
	return FolderFromLabel(l)
}
