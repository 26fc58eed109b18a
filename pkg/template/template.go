// Package template interpolates conversation variables into node texts.
package template

import (
	"regexp"
	"strings"
)

var placeholder = regexp.MustCompile(`\{\{\s*([\p{L}\p{N}_.\-]+)\s*\}\}`)

// Interpolate replaces every {{name}} with vars[name]. Unknown names render as
// an empty string and the surrounding whitespace is left untouched.
func Interpolate(text string, vars map[string]string) string {
	if !strings.Contains(text, "{{") {
		return text
	}

	return placeholder.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholder.FindStringSubmatch(match)[1]

		return vars[strings.TrimPrefix(name, "var.")]
	})
}

// Names lists the variables referenced by text, in order of first appearance.
func Names(text string) []string {
	matches := placeholder.FindAllStringSubmatch(text, -1)
	seen := make(map[string]bool, len(matches))
	names := make([]string, 0, len(matches))

	for _, match := range matches {
		name := strings.TrimPrefix(match[1], "var.")
		if !seen[name] {
			seen[name] = true

			names = append(names, name)
		}
	}

	return names
}
