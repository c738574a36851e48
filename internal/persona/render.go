package persona

import (
	"fmt"
	"strings"
)

const finalInstructions = "Stay strictly within the persona above. Keep the personality and " +
	"language style consistent and avoid the expressions marked as out of character. Let your " +
	"background show where it fits. Sentence-ending particles may appear naturally, but not in " +
	"every sentence. Be concise while keeping answers complete and natural, around 60 to 100 " +
	"words on average, and do not repeat yourself."

// Render turns a filled profile into the personality text placed at the top
// of every prompt. Leaves that are missing or empty are left out.
func Render(root *Group) string {
	sections := []struct {
		title string
		body  string
	}{
		{"Role", renderRole(root)},
		{"Communication style", renderStyle(root)},
		{"Response guidelines", renderGuidelines(root)},
		{"Examples and restrictions", renderExamples(root)},
		{"Final instructions", finalInstructions},
	}

	var b strings.Builder
	for _, s := range sections {
		if strings.TrimSpace(s.body) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("# ")
		b.WriteString(s.title)
		b.WriteString("\n")
		b.WriteString(s.body)
	}
	return b.String()
}

// Text returns the leaf at path rendered as a string, or "" when absent.
func Text(root *Group, path string) string {
	n, err := root.Lookup(path)
	if err != nil {
		return ""
	}
	leaf, ok := n.(*Leaf)
	if !ok || leaf.Value == nil {
		return ""
	}
	switch v := leaf.Value.(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, e := range v {
			if s := strings.TrimSpace(fmt.Sprint(e)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(v, ", ")
	default:
		return fmt.Sprint(v)
	}
}

func sentences(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

func when(value, format string) string {
	if value == "" {
		return ""
	}
	return fmt.Sprintf(format, value)
}

func renderRole(root *Group) string {
	name := Text(root, "user_profile.basic_info.name")
	occupation := Text(root, "user_profile.basic_info.occupation")
	var intro string
	switch {
	case name != "" && occupation != "":
		intro = fmt.Sprintf("You call yourself %s, a %s.", name, occupation)
	case name != "":
		intro = fmt.Sprintf("You call yourself %s.", name)
	case occupation != "":
		intro = fmt.Sprintf("You are a %s.", occupation)
	}
	return sentences(
		intro,
		when(Text(root, "user_profile.basic_info.mbti"), "Your MBTI type is %s."),
		when(Text(root, "user_profile.personality.core_traits"), "Your core traits: %s."),
		when(Text(root, "user_profile.personality.values"), "You value: %s."),
		when(Text(root, "user_profile.personality.interests"), "Your interests: %s."),
	)
}

func renderStyle(root *Group) string {
	verbosity := Text(root, "communication_style.response_style.verbosity")
	formality := Text(root, "communication_style.response_style.formality")
	var tendency string
	switch {
	case verbosity != "" && formality != "":
		tendency = fmt.Sprintf("Your answers tend to be %s, and your language is %s.", verbosity, formality)
	case verbosity != "":
		tendency = fmt.Sprintf("Your answers tend to be %s.", verbosity)
	case formality != "":
		tendency = fmt.Sprintf("Your language is %s.", formality)
	}
	return sentences(
		when(Text(root, "communication_style.language_tone"), "Your tone is %s."),
		when(Text(root, "communication_style.speaking_habits.sentence_endings"), "Sentence endings you use now and then: %s."),
		tendency,
	)
}

func renderGuidelines(root *Group) string {
	var clauses []string
	if v := Text(root, "response_generation_guidelines.length_preference"); v != "" {
		clauses = append(clauses, "keep a "+v+" length")
	}
	if v := Text(root, "response_generation_guidelines.directness"); v != "" {
		clauses = append(clauses, "express yourself "+v)
	}
	if v := Text(root, "response_generation_guidelines.information_density"); v != "" {
		clauses = append(clauses, "deliver information "+v)
	}
	if v := Text(root, "response_generation_guidelines.interaction_style"); v != "" {
		clauses = append(clauses, "interact in a "+v+" way")
	}
	switch len(clauses) {
	case 0:
		return ""
	case 1:
		return "When answering, " + clauses[0] + "."
	default:
		return "When answering, " + strings.Join(clauses[:len(clauses)-1], ", ") + " and " + clauses[len(clauses)-1] + "."
	}
}

func renderExamples(root *Group) string {
	var lines []string
	if examples := listAt(root, "example_responses.examples"); len(examples) > 0 {
		var body []string
		for _, ex := range examples {
			if ex["your_response"] == "" {
				continue
			}
			body = append(body, fmt.Sprintf("When asked \"%s\", you answer: \"%s\"", ex["user_message"], ex["your_response"]))
		}
		if len(body) > 0 {
			lines = append(lines, "Typical replies of yours:")
			lines = append(lines, body...)
		}
	}
	if never := listAt(root, "uncharacteristic_statements.examples"); len(never) > 0 {
		var body []string
		for _, ex := range never {
			if ex["your_response"] == "" {
				continue
			}
			body = append(body, fmt.Sprintf("When you hear \"%s\", you never say: \"%s\"", ex["user_message"], ex["your_response"]))
		}
		if len(body) > 0 {
			if len(lines) > 0 {
				lines = append(lines, "")
			}
			lines = append(lines, "Expressions you never use:")
			lines = append(lines, body...)
		}
	}
	return strings.Join(lines, "\n")
}

func listAt(root *Group, path string) []map[string]string {
	n, err := root.Lookup(path)
	if err != nil {
		return nil
	}
	if l, ok := n.(*List); ok {
		return l.Items
	}
	return nil
}
