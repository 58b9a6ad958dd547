package label

import (
	"reflect"
	"testing"
)

func TestParseValues(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   []string
	}{
		{
			name:   "simple list",
			values: []string{"Inbox,Work,Sent"},
			want:   []string{"Inbox", "Work", "Sent"},
		},
		{
			name:   "spaces around entries",
			values: []string{" Inbox , Work "},
			want:   []string{"Inbox", "Work"},
		},
		{
			name:   "quoted comma does not split",
			values: []string{`"Friends, Family",Work`},
			want:   []string{"Friends, Family", "Work"},
		},
		{
			name:   "multiple header values",
			values: []string{"Inbox", "Work,Sent"},
			want:   []string{"Inbox", "Work", "Sent"},
		},
		{
			name:   "folded value",
			values: []string{"Inbox,\r\n Work"},
			want:   []string{"Inbox", "Work"},
		},
		{
			name:   "encoded word",
			values: []string{"=?UTF-8?Q?Rechnungen?=,Sent"},
			want:   []string{"Rechnungen", "Sent"},
		},
		{
			name:   "empty entries dropped",
			values: []string{"Inbox,,Work,"},
			want:   []string{"Inbox", "Work"},
		},
		{
			name:   "no header",
			values: nil,
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseValues(tt.values)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseValues(%q) = %v, want %v", tt.values, got, tt.want)
			}
		})
	}
}

func TestSplitQuoted(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "a,b,c", want: []string{"a", "b", "c"}},
		{in: `"a,b",c`, want: []string{`"a,b"`, "c"}},
		{in: `"a\",b",c`, want: []string{`"a\",b"`, "c"}},
		{in: "", want: []string{""}},
	}

	for _, tt := range tests {
		got := splitQuoted(tt.in, ',')
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitQuoted(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIgnoreSet_Filter(t *testing.T) {
	set := NewIgnoreSet(DefaultIgnored())

	got := set.Filter([]string{"Opened", "Work", "Unread", "Category Updates", "Sent"})
	want := []string{"Work", "Sent"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Filter = %v, want %v", got, want)
	}
}

func TestIgnoreSet_CaseSensitive(t *testing.T) {
	set := NewIgnoreSet([]string{"Opened"})

	got := set.Filter([]string{"opened", "Opened"})
	want := []string{"opened"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Filter = %v, want %v", got, want)
	}
}

func TestIgnoreSet_Empty(t *testing.T) {
	var set IgnoreSet
	in := []string{"Work", "Sent"}
	if got := set.Filter(in); !reflect.DeepEqual(got, in) {
		t.Errorf("empty set must pass labels through, got %v", got)
	}
}
