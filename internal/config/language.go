package config

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// ParseLanguage validates a BCP 47 language tag.
func ParseLanguage(tag string) (language.Tag, error) {
	t, err := language.Parse(strings.TrimSpace(tag))
	if err != nil {
		return language.Und, fmt.Errorf("invalid language tag %q: %w", tag, err)
	}
	return t, nil
}

// LanguageName returns the English display name of a tag ("ja" -> "Japanese").
// Unparseable tags are returned unchanged so prompts still carry something readable.
func LanguageName(tag string) string {
	t, err := ParseLanguage(tag)
	if err != nil {
		return tag
	}
	if name := display.English.Languages().Name(t); name != "" {
		return name
	}
	return tag
}

// PrimaryIsEnglish reports whether the English rendering is the primary one.
func (c *Config) PrimaryIsEnglish() bool {
	return c.PrimaryLanguage == "" || strings.EqualFold(c.PrimaryLanguage, "en")
}
