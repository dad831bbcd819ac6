// Package i18n selects message printers for CLI and bot output. English is
// the source language; catalog.go registers the German translations.
package i18n

import (
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultLang is used when nothing better matches.
var DefaultLang = language.English

var matcher = language.NewMatcher([]language.Tag{language.English, language.German})

// MatchLanguage returns the supported base language closest to an
// Accept-Language style list, or DefaultLang.
func MatchLanguage(accept string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return DefaultLang
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return DefaultLang
	}
	return []language.Tag{language.English, language.German}[idx]
}

// ForLanguageCode returns a printer for the language_code a chat client
// reports ("de", "en-GB"). Blank means DefaultLang.
func ForLanguageCode(code string) *message.Printer {
	return message.NewPrinter(MatchLanguage(strings.TrimSpace(code)))
}

// NewCLIPrinter returns a printer for the locale in LC_ALL or LANG, with
// any encoding suffix ("de_DE.UTF-8") ignored.
func NewCLIPrinter() *message.Printer {
	locale := os.Getenv("LC_ALL")
	if locale == "" {
		locale = os.Getenv("LANG")
	}
	if i := strings.IndexAny(locale, ".@"); i != -1 {
		locale = locale[:i]
	}
	return message.NewPrinter(MatchLanguage(strings.ReplaceAll(locale, "_", "-")))
}
