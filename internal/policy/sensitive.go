package policy

import "regexp"

// rule is one category of personal data. Rules with a mask are also
// redacted; the rest are only detected.
type rule struct {
	category string
	re       *regexp.Regexp
	mask     string
}

// rules drive both detection and redaction. Redaction applies them in order,
// so longer digit runs (cards, ID numbers) come before phone numbers.
var rules = []rule{
	{"email", regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[REDACTED_EMAIL]"},
	{"id_number", regexp.MustCompile(`\b(?:\d{17}[\dXx]|\d{15})\b`), "[REDACTED_ID]"},
	{"bank_card", regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), "[REDACTED_CARD]"},
	{"ip_address", regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}\b`), "[REDACTED_IP]"},
	{"mobile", regexp.MustCompile(`\b1[3-9]\d{9}\b`), "[REDACTED_PHONE]"},
	{"address", regexp.MustCompile(`(?:省|市|区|县|路|街|号楼?)\d+号?`), "[REDACTED_ADDRESS]"},
	{"amount", regexp.MustCompile(`(?:¥|\$)\d+(?:\.\d{2})?|\d+(?:\.\d{2})?(?:元|万元|块钱)`), ""},
	{"phone", regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`), "[REDACTED_PHONE]"},
}

// SensitiveCategories returns the categories of personal data found in text,
// in a fixed order, without duplicates.
func SensitiveCategories(text string) []string {
	if text == "" {
		return nil
	}
	var out []string
	for _, r := range rules {
		if r.re.MatchString(text) {
			out = append(out, r.category)
		}
	}
	return out
}

// ContainsSensitive reports whether text carries any personal data pattern.
// Imported chat messages that do are dropped before profile generation.
func ContainsSensitive(text string) bool {
	if text == "" {
		return false
	}
	for _, r := range rules {
		if r.re.MatchString(text) {
			return true
		}
	}
	return false
}
