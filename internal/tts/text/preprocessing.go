// Package text prepares utterances for providers that cap the length of a
// single synthesis call.
package text

import (
	"strings"
	"unicode/utf8"
)

// Punctuation and formatting constants.
const (
	emDash       = "—"
	enDash       = "–"
	figureDash   = "‒"
	ellipsis     = "..."
	ellipsisChar = "…"
)

const sentenceTerminators = ".!?;"

var punctuationReplacer = strings.NewReplacer(
	emDash, "-",
	enDash, "-",
	figureDash, "-",
	ellipsisChar, ellipsis,
	"“", `"`, "”", `"`,
	"‘", "'", "’", "'",
)

// Normalize collapses runs of whitespace into single spaces and maps typographic
// quotes and dashes to their ASCII forms.
func Normalize(text string) string {
	return strings.Join(strings.Fields(punctuationReplacer.Replace(text)), " ")
}

// Split breaks text into chunks of at most limit characters. Sentences are kept
// whole when they fit, otherwise the split falls on word boundaries; a single
// word longer than limit is cut at limit. A limit of zero or less disables
// splitting. Joining the chunks with spaces yields Normalize(text).
func Split(text string, limit int) []string {
	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}

	if limit <= 0 || utf8.RuneCountInString(normalized) <= limit {
		return []string{normalized}
	}

	var (
		chunks     []string
		current    strings.Builder
		currentLen int
	)

	flush := func() {
		if currentLen == 0 {
			return
		}

		chunks = append(chunks, current.String())
		current.Reset()

		currentLen = 0
	}

	for _, piece := range pieces(normalized, limit) {
		pieceLen := utf8.RuneCountInString(piece)

		separator := 0
		if currentLen > 0 {
			separator = 1
		}

		if currentLen+separator+pieceLen > limit {
			flush()

			separator = 0
		}

		if separator > 0 {
			current.WriteByte(' ')
		}

		current.WriteString(piece)
		currentLen += separator + pieceLen
	}

	flush()

	return chunks
}

// pieces returns whole sentences that fit in limit, and the words of those
// that do not.
func pieces(normalized string, limit int) []string {
	var (
		result   []string
		sentence []string
	)

	emit := func() {
		if len(sentence) == 0 {
			return
		}

		joined := strings.Join(sentence, " ")
		if utf8.RuneCountInString(joined) <= limit {
			result = append(result, joined)
		} else {
			for _, word := range sentence {
				result = append(result, cutWord(word, limit)...)
			}
		}

		sentence = sentence[:0]
	}

	for _, word := range strings.Fields(normalized) {
		sentence = append(sentence, word)

		last, _ := utf8.DecodeLastRuneInString(word)
		if strings.ContainsRune(sentenceTerminators, last) {
			emit()
		}
	}

	emit()

	return result
}

func cutWord(word string, limit int) []string {
	runes := []rune(word)
	if len(runes) <= limit {
		return []string{word}
	}

	parts := make([]string, 0, len(runes)/limit+1)
	for start := 0; start < len(runes); start += limit {
		end := min(start+limit, len(runes))
		parts = append(parts, string(runes[start:end]))
	}

	return parts
}
