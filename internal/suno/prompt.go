package suno

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Upstream length limits.
const (
	MaxDescriptionLength = 200
	MaxLyricsLength      = 3000
)

const whitespaceRegexPattern = `[ \t\f\v]+`

// Punctuation variants folded to ASCII.
const (
	emDash       = "—"
	enDash       = "–"
	figureDash   = "‒"
	ellipsis     = "..."
	ellipsisChar = "…"
)

// PromptNormalizer cleans prompts that arrive from chat before they are sent
// to the proxy.
type PromptNormalizer struct {
	whitespacePattern *regexp.Regexp
	quoteReplacer     *strings.Replacer
}

// NewPromptNormalizer compiles the patterns used by Description and Lyrics.
func NewPromptNormalizer() *PromptNormalizer {
	return &PromptNormalizer{
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
		quoteReplacer: strings.NewReplacer(
			emDash, "-",
			enDash, "-",
			figureDash, "-",
			ellipsisChar, ellipsis,
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
	}
}

// Description flattens a description prompt to a single line, collapses
// runs of punctuation and truncates it to maxLen runes. A maxLen of zero
// uses MaxDescriptionLength.
func (n *PromptNormalizer) Description(prompt string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = MaxDescriptionLength
	}

	text := strings.Join(strings.Fields(prompt), " ")
	text = n.quoteReplacer.Replace(text)
	text = removeRepeatedPunctuation(text)

	return truncateRunes(strings.TrimSpace(text), maxLen)
}

// Lyrics keeps line structure (section markers such as "[Verse]" depend on
// it) but normalizes line endings, quotes and intra-line spacing.
func (n *PromptNormalizer) Lyrics(lyrics string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = MaxLyricsLength
	}

	lyrics = strings.ReplaceAll(lyrics, "\r\n", "\n")
	lyrics = n.quoteReplacer.Replace(lyrics)

	lines := strings.Split(lyrics, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(n.whitespacePattern.ReplaceAllString(line, " "))
	}

	return truncateRunes(strings.TrimSpace(strings.Join(lines, "\n")), maxLen)
}

// collapsedMarks are the marks whose runs are cut down to one. Other
// punctuation is left alone so URLs and "--" survive.
const collapsedMarks = "!?.,"

// removeRepeatedPunctuation keeps the first of any run of a collapsed mark,
// so "!!!" becomes "!" and a folded "..." becomes a single period.
func removeRepeatedPunctuation(text string) string {
	var (
		builder strings.Builder
		last    rune
	)

	builder.Grow(len(text))

	for _, char := range text {
		if char == last && strings.ContainsRune(collapsedMarks, char) {
			continue
		}

		builder.WriteRune(char)
		last = char
	}

	return builder.String()
}

func truncateRunes(text string, maxLen int) string {
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}

	runes := []rune(text)

	return strings.TrimSpace(string(runes[:maxLen]))
}
