package compare_test

import (
	"strings"
	"testing"

	"algojudge/internal/judge/compare"
)

func TestMatchesTolerantWhitespace(t *testing.T) {
	cases := []struct {
		name     string
		actual   string
		expected string
	}{
		{"identical", "0 1", "0 1"},
		{"trailing newline", "0 1\n", "0 1"},
		{"trailing spaces per line", "1 2  \n3 4\t\n", "1 2\n3 4"},
		{"crlf", "1\r\n2\r\n", "1\n2"},
		{"vertical tab and form feed", "1\v\n2\f\n", "1\n2"},
		{"unicode trailing space", "1\u00a0\n2\u3000", "1\n2"},
		{"trailing blank lines", "x\n\n\n  \n", "x"},
		{"both empty", "", "\n\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if !compare.Matches(tc.actual, tc.expected) {
				t.Fatalf("Matches(%q, %q) = false, want true", tc.actual, tc.expected)
			}
			if !compare.Matches(tc.expected, tc.actual) {
				t.Fatalf("Matches is not symmetric for %q / %q", tc.expected, tc.actual)
			}
		})
	}
}

func TestMatchesStrictContent(t *testing.T) {
	cases := []struct {
		name     string
		actual   string
		expected string
	}{
		{"case", "Yes", "yes"},
		{"internal whitespace", "1  2", "1 2"},
		{"leading whitespace", " 1", "1"},
		{"inner blank line", "1\n\n2", "1\n2"},
		{"line order", "2\n1", "1\n2"},
		{"missing line", "1", "1\n2"},
		{"different answer", "0 0", "0 1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if compare.Matches(tc.actual, tc.expected) {
				t.Fatalf("Matches(%q, %q) = true, want false", tc.actual, tc.expected)
			}
		})
	}
}

func TestMatchesGeneratedWhitespaceVariants(t *testing.T) {
	base := []string{"3", "1 2 3", "hello world", "-7"}
	pads := []string{"", " ", "\t", "  \t", "\r"}
	for i := 0; i < len(pads)*len(pads); i++ {
		lines := make([]string, len(base))
		for j, line := range base {
			lines[j] = line + pads[(i+j)%len(pads)]
		}
		actual := strings.Join(lines, "\n") + strings.Repeat("\n", i%3)
		if !compare.Matches(actual, strings.Join(base, "\n")) {
			t.Fatalf("variant %d should match: %q", i, actual)
		}
		upper := strings.ToUpper(actual)
		if compare.Matches(upper, strings.Join(base, "\n")) {
			t.Fatalf("case-changed variant %d should not match", i)
		}
	}
}

func TestNormalize(t *testing.T) {
	got := compare.Normalize("a \nb\t\n\n")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("Normalize = %q", got)
	}
	if got := compare.Normalize(""); len(got) != 0 {
		t.Fatalf("Normalize(\"\") = %q, want empty", got)
	}
}
