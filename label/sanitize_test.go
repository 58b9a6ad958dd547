package label

import "testing"

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		want  string
	}{
		{name: "plain", in: "Work", want: "Work"},
		{name: "spaces", in: "Read Receipt Sent", want: "Read_Receipt_Sent"},
		{name: "punctuation", in: "inbox: urgent!", want: "inbox_urgent"},
		{name: "unicode", in: "Rechnungen 2023 äöü", want: "Rechnungen_2023"},
		{name: "collapses underscores", in: "a___b", want: "a_b"},
		{name: "keeps allowed punctuation", in: "a-b_c", want: "a-b_c"},
		{name: "dot becomes underscore", in: "v1.2", want: "v1_2"},
		{name: "empty", in: "", want: FallbackSegment},
		{name: "all underscores", in: "____", want: FallbackSegment},
		{name: "only invalid", in: "!!!", want: FallbackSegment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.in)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	inputs := []string{
		"Work", "Read Receipt Sent", "a___b", "", "!!!", "über wichtig",
		"v1.2-final", "trailing_", "_leading", FallbackSegment,
	}
	for _, in := range inputs {
		once := Sanitize(in)
		twice := Sanitize(once)
		if once != twice {
			t.Errorf("Sanitize not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestSanitize_OnlyAllowedCharacters(t *testing.T) {
	inputs := []string{"Work/Life", "a b\tc", "日本語", "x?*<>|y", "ok-1.2_3"}
	for _, in := range inputs {
		got := Sanitize(in)
		for _, r := range got {
			if !allowed(r) {
				t.Errorf("Sanitize(%q) = %q contains disallowed rune %q", in, got, r)
			}
		}
	}
}

func TestFolderFromLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Work", want: "Work"},
		{in: "Work/Invoices", want: "Work/Invoices"},
		{in: "Work / Invoices 2023", want: "Work/Invoices_2023"},
		{in: "v1.2/notes", want: "v1_2/notes"},
		{in: "a//b", want: "a/b"},
		{in: "///", want: FallbackSegment},
		{in: "", want: FallbackSegment},
	}

	for _, tt := range tests {
		got := FolderFromLabel(tt.in)
		if got != tt.want {
			t.Errorf("FolderFromLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
