package textutil

import "strings"

const punctuation = ".,!?:;()"

// HighlightWord emphasizes standalone occurrences of word (a recipient's
// nick) so broadcast lines that mention someone stand out for them.
func HighlightWord(text, word string) string {
	word = strings.TrimSpace(word)
	if word == "" {
		return text
	}
	parts := strings.Split(text, " ")
	for i, part := range parts {
		if strings.Trim(part, punctuation) != word {
			continue
		}
		parts[i] = strings.Replace(part, word, "*"+word+"*", 1)
	}
	return strings.Join(parts, " ")
}
