package utils

import "strings"

// Slug generates a URL-friendly identifier from a title: lowercase,
// "@" spelled out, runs of non-alphanumeric characters collapsed into
// single separators.
func Slug(title string) string {
	title = strings.ToLower(title)
	title = strings.ReplaceAll(title, "@", " at ")

	var builder strings.Builder
	lastWasSeparator := true

	for _, r := range title {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')

		if isAlnum {
			builder.WriteRune(r)
			lastWasSeparator = false
			continue
		}

		if !lastWasSeparator {
			builder.WriteByte('-')
			lastWasSeparator = true
		}
	}

	return strings.Trim(builder.String(), "-")
}
