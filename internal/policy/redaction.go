package policy

import "slices"

// Redact masks the maskable categories of personal data before an exchange
// is written to long-term memory. It returns the masked text and the
// categories that were replaced; amounts are left readable.
func Redact(text string) (string, []string) {
	if text == "" {
		return text, nil
	}
	var categories []string
	for _, r := range rules {
		if r.mask == "" {
			continue
		}
		next := r.re.ReplaceAllString(text, r.mask)
		if next != text {
			if !slices.Contains(categories, r.category) {
				categories = append(categories, r.category)
			}
			text = next
		}
	}
	return text, categories
}
