package newick

import (
	"slices"
	"sort"
	"testing"
)

func leafNames(t *testing.T, n *Node) []string {
	t.Helper()
	names := n.Leaves(nil)
	sort.Strings(names)
	return names
}

func TestParseValid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"cherry", "(A,B);", []string{"A", "B"}},
		{"balanced", "((A,B),(C,D));", []string{"A", "B", "C", "D"}},
		{"caterpillar", "(A,(B,(C,D)));", []string{"A", "B", "C", "D"}},
		{"branch lengths", "((A:0.1,B:0.2):0.3,(C:0.1,D:0.4):0.2);", []string{"A", "B", "C", "D"}},
		{"internal labels", "((A,B)x,(C,D)y)root;", []string{"A", "B", "C", "D"}},
		{"polytomy", "(A,B,C);", []string{"A", "B", "C"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.input, err)
			}
			if got := leafNames(t, root); !slices.Equal(got, tt.want) {
				t.Errorf("leaves = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing semicolon", "(A,B)"},
		{"unbalanced parens", "((A,B);"},
		{"unlabeled tip", "(A,());"},
		{"empty string", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.input); err == nil {
				t.Errorf("Parse(%q) expected error, got nil", tt.input)
			}
		})
	}
}

func TestParseStripsSpaces(t *testing.T) {
	root, err := Parse(" ( A , B ) ; ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := leafNames(t, root); !slices.Equal(got, []string{"A", "B"}) {
		t.Errorf("leaves = %v", got)
	}
}
