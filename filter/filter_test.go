package filter

import (
	"bytes"
	"testing"
)

const testHeader = "From: alice@example.com\r\nSubject: Invoice 2023\r\nTo: bob@example.com"
const testBody = "Please find the invoice attached.\r\nRegards, Alice"

func TestFilter_NoRules(t *testing.T) {
	f, err := New(Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !f.Allows([]byte(testHeader), []byte(testBody), []string{"Work"}) {
		t.Error("a filter without rules must allow everything")
	}
}

func TestFilter_IncludeHeader(t *testing.T) {
	f, err := New(Options{IncludeHeader: []string{`Subject: Invoice \d+`}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !f.Allows([]byte(testHeader), []byte(testBody), nil) {
		t.Error("matching header should be allowed")
	}
	if f.Allows([]byte("Subject: hello"), []byte(testBody), nil) {
		t.Error("non-matching header should be dropped in include mode")
	}
}

func TestFilter_ExcludeBody(t *testing.T) {
	f, err := New(Options{ExcludeBody: []string{"unsubscribe"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if f.Allows([]byte(testHeader), []byte("click to unsubscribe"), nil) {
		t.Error("matching body should be dropped in exclude mode")
	}
	if !f.Allows([]byte(testHeader), []byte(testBody), nil) {
		t.Error("non-matching body should be allowed")
	}
}

func TestFilter_LabelClauses(t *testing.T) {
	include, err := New(Options{IncludeLabel: []string{"Work"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !include.Allows(nil, nil, []string{"Work", "Sent"}) {
		t.Error("message carrying the included label should be allowed")
	}
	if include.Allows(nil, nil, []string{"Sent"}) {
		t.Error("message without the included label should be dropped")
	}

	exclude, err := New(Options{ExcludeLabel: []string{"Spam"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if exclude.Allows(nil, nil, []string{"Spam", "Work"}) {
		t.Error("message carrying the excluded label should be dropped")
	}
	if !exclude.Allows(nil, nil, []string{"Work"}) {
		t.Error("message without the excluded label should be allowed")
	}
}

func TestFilter_LabelMatchIsExact(t *testing.T) {
	f, err := New(Options{IncludeLabel: []string{"Work"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if f.Allows(nil, nil, []string{"Workshop", "work"}) {
		t.Error("label clauses must match exactly, not by substring or case")
	}
}

func TestFilter_MutuallyExclusiveModes(t *testing.T) {
	_, err := New(Options{
		IncludeHeader: []string{"Subject:"},
		ExcludeLabel:  []string{"Spam"},
	})
	if err == nil {
		t.Error("mixing include and exclude rules must fail")
	}
}

func TestFilter_InvalidPattern(t *testing.T) {
	if _, err := New(Options{IncludeHeader: []string{"("}}); err == nil {
		t.Error("expected error for invalid regular expression")
	}
}

func TestSplitRawMessage(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantHeader string
		wantBody   string
	}{
		{
			name:       "crlf separator",
			raw:        "From: a@b\r\nSubject: x\r\n\r\nbody here",
			wantHeader: "From: a@b\r\nSubject: x",
			wantBody:   "body here",
		},
		{
			name:       "lf separator",
			raw:        "From: a@b\n\nbody",
			wantHeader: "From: a@b",
			wantBody:   "body",
		},
		{
			name:       "no separator",
			raw:        "From: a@b",
			wantHeader: "From: a@b",
			wantBody:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header, body := SplitRawMessage([]byte(tt.raw))
			if !bytes.Equal(header, []byte(tt.wantHeader)) {
				t.Errorf("header = %q, want %q", header, tt.wantHeader)
			}
			if string(body) != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
		})
	}
}

func TestSplitRawMessage_Empty(t *testing.T) {
	header, body := SplitRawMessage(nil)
	if header != nil || body != nil {
		t.Errorf("empty input should split into nil parts, got %q / %q", header, body)
	}
}
