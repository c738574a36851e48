package policy

import (
	"slices"
	"testing"
)

func TestContainsSensitive(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", false},
		{"see you at lunch", false},
		{"我们明天见", false},
		{"call me on 13812345678", true},
		{"mail me: bob@example.com", true},
		{"server is 10.0.0.12", true},
		{"住在人民路88号", true},
		{"it cost ¥30", true},
		{"一共50块钱", true},
		{"room 12 at 3pm", false},
	}
	for _, tt := range tests {
		if got := ContainsSensitive(tt.in); got != tt.want {
			t.Fatalf("ContainsSensitive(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSensitiveCategories(t *testing.T) {
	got := SensitiveCategories("bob@example.com 13812345678")
	for _, want := range []string{"email", "mobile"} {
		if !slices.Contains(got, want) {
			t.Fatalf("SensitiveCategories() = %v, missing %q", got, want)
		}
	}
	if got := SensitiveCategories("hello"); len(got) != 0 {
		t.Fatalf("SensitiveCategories(hello) = %v, want none", got)
	}
}
