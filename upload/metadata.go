package upload

import (
	"strings"
	"unicode/utf8"

	"shorts-studio/types"
)

// TitleMaxChars is the YouTube title limit
const TitleMaxChars = 100

// BuildMetadata derives publish metadata from the product query and script
func BuildMetadata(query string, script types.Script, lang types.Language, visibility string) *types.VideoMetadata {
	title := strings.TrimSpace(query)
	if hook := strings.TrimSpace(script.Hook); hook != "" {
		title = title + " | " + hook
	}
	title = truncate(title, TitleMaxChars) + " #shorts"

	var sb strings.Builder
	sb.WriteString(script.Hook + "\n\n")
	sb.WriteString(script.Body + "\n\n")
	sb.WriteString(script.CTA)

	return &types.VideoMetadata{
		Title:       title,
		Description: sb.String(),
		Tags:        buildTags(query),
		Visibility:  visibility,
		Language:    lang,
	}
}

func buildTags(query string) []string {
	tags := []string{"shorts", "product review"}
	seen := map[string]bool{"shorts": true, "product review": true}
	add := func(t string) {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		tags = append(tags, t)
	}
	add(query)
	for _, w := range strings.Fields(query) {
		add(w)
	}
	return tags
}

// truncate shortens s to n runes, leaving room for the "#shorts" suffix
func truncate(s string, n int) string {
	n -= len(" #shorts")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}
