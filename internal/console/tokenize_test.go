package console

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "empty",
			input: "",
			want:  nil,
		},
		{
			name:  "only whitespace",
			input: "   \t ",
			want:  nil,
		},
		{
			name:  "double quoted name",
			input: `heal "Sir Reginald" 5`,
			want:  []string{"heal", "Sir Reginald", "5"},
		},
		{
			name:  "escaped space",
			input: `a\ b c`,
			want:  []string{"a b", "c"},
		},
		{
			name:  "single quotes",
			input: `buff 'Lady Ann' Poison icon1 3`,
			want:  []string{"buff", "Lady Ann", "Poison", "icon1", "3"},
		},
		{
			name:  "collapses whitespace runs",
			input: "  a   b  ",
			want:  []string{"a", "b"},
		},
		{
			name:  "explicit empty token",
			input: `a "" b`,
			want:  []string{"a", "", "b"},
		},
		{
			name:  "quote inside other quote kind",
			input: `say "it's fine"`,
			want:  []string{"say", "it's fine"},
		},
		{
			name:  "escaped quote inside quotes",
			input: `say "a \" b"`,
			want:  []string{"say", `a " b`},
		},
		{
			name:  "escape inside single quotes",
			input: `'a\'b'`,
			want:  []string{"a'b"},
		},
		{
			name:  "adjacent quoted and bare text join",
			input: `pre"fix suf"fix next`,
			want:  []string{"prefix suffix", "next"},
		},
		{
			name:  "escaped backslash",
			input: `a\\b`,
			want:  []string{`a\b`},
		},
		{
			name:  "trailing backslash",
			input: `a\`,
			want:  []string{`a\`},
		},
		{
			name:  "effect arguments",
			input: `buff "Alice" "Poison" icon1 3 turn:hp-2`,
			want:  []string{"buff", "Alice", "Poison", "icon1", "3", "turn:hp-2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Tokenize(tt.input)
			if err != nil {
				t.Fatalf("Tokenize(%q) error: %v", tt.input, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Tokenize(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestTokenizeUnterminatedQuote(t *testing.T) {
	for _, input := range []string{`"unterminated`, `a 'b c`, `x "y\"`} {
		got, err := Tokenize(input)
		if !errors.Is(err, ErrUnterminatedQuote) {
			t.Errorf("Tokenize(%q) error = %v, want ErrUnterminatedQuote", input, err)
		}
		if got != nil {
			t.Errorf("Tokenize(%q) = %q, want nil", input, got)
		}
	}
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		line     string
		wantName string
		wantRest string
	}{
		{"session", "session", ""},
		{"session new Alice", "session", "new Alice"},
		{"  damage   \"Alice\" 10", "damage", "\"Alice\" 10"},
		{"", "", ""},
	}
	for _, tt := range tests {
		name, rest := SplitCommand(tt.line)
		if name != tt.wantName || rest != tt.wantRest {
			t.Errorf("SplitCommand(%q) = (%q, %q), want (%q, %q)", tt.line, name, rest, tt.wantName, tt.wantRest)
		}
	}
}
