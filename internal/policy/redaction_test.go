package policy

import (
	"slices"
	"strings"
	"testing"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		want       string
		categories []string
	}{
		{
			name:       "contact details",
			in:         "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242.",
			want:       "Email me at [REDACTED_EMAIL] or [REDACTED_PHONE] and use [REDACTED_CARD].",
			categories: []string{"email", "bank_card", "phone"},
		},
		{
			name:       "mobile in chinese text",
			in:         "我的手机13812345678，晚上打",
			want:       "我的手机[REDACTED_PHONE]，晚上打",
			categories: []string{"mobile"},
		},
		{
			name:       "id number before card",
			in:         "身份证 11010119900307123X 已提交",
			want:       "身份证 [REDACTED_ID] 已提交",
			categories: []string{"id_number"},
		},
		{
			name:       "ip and address",
			in:         "server 10.0.0.12, 住在人民路88号",
			want:       "server [REDACTED_IP], 住在人民[REDACTED_ADDRESS]",
			categories: []string{"ip_address", "address"},
		},
		{
			name: "amounts stay readable",
			in:   "it cost ¥30, 一共50块钱",
			want: "it cost ¥30, 一共50块钱",
		},
	}
	for _, tt := range tests {
		got, cats := Redact(tt.in)
		if got != tt.want {
			t.Fatalf("%s: Redact() = %q, want %q", tt.name, got, tt.want)
		}
		if !slices.Equal(cats, tt.categories) {
			t.Fatalf("%s: categories = %v, want %v", tt.name, cats, tt.categories)
		}
	}
}

func TestRedactedTextIsNoLongerSensitive(t *testing.T) {
	in := "mail bob@example.com, call 13812345678, card 6222 0212 3456 7890 123"
	out, _ := Redact(in)
	for _, c := range SensitiveCategories(out) {
		if c != "amount" {
			t.Fatalf("SensitiveCategories(%q) still reports %q", out, c)
		}
	}
	if strings.Contains(out, "13812345678") {
		t.Fatalf("Redact() kept the mobile number: %q", out)
	}
}
