package utils

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gosimple/slug"
	"github.com/gosimple/unidecode"
	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

var (
	titleCaser = cases.Title(language.BrazilianPortuguese)
	lowerCaser = cases.Lower(language.BrazilianPortuguese)
)

// name particles kept lowercase by NormalizeName
var particles = map[string]bool{"da": true, "das": true, "de": true, "do": true, "dos": true, "e": true}

// Initials returns up to two uppercase letters for an avatar placeholder:
// the first letters of the name's words, else the start of the email's local
// part, else "AD".
func Initials(name, email string) string {
	if words := strings.Fields(name); len(words) > 0 {
		var b strings.Builder
		for _, w := range words {
			r, _ := utf8.DecodeRuneInString(w)
			b.WriteRune(r)
			if utf8.RuneCountInString(b.String()) == 2 {
				break
			}
		}
		return strings.ToUpper(b.String())
	}
	if local, _, _ := strings.Cut(strings.TrimSpace(email), "@"); local != "" {
		runes := []rune(local)
		if len(runes) > 2 {
			runes = runes[:2]
		}
		return strings.ToUpper(string(runes))
	}
	return "AD"
}

// NormalizeName trims, collapses whitespace and title-cases a person's name.
func NormalizeName(name string) string {
	words := strings.Fields(name)
	for i, w := range words {
		lw := lowerCaser.String(w)
		if i > 0 && particles[lw] {
			words[i] = lw
			continue
		}
		words[i] = titleCaser.String(w)
	}
	return strings.Join(words, " ")
}

// SearchKey folds s for accent- and case-insensitive matching.
func SearchKey(s string) string {
	return strings.ToLower(strings.TrimSpace(unidecode.Unidecode(s)))
}

// ContainsFold reports whether needle occurs in haystack ignoring case and accents.
func ContainsFold(haystack, needle string) bool {
	return strings.Contains(SearchKey(haystack), SearchKey(needle))
}

// SortByName sorts items in pt-BR alphabetical order of key.
func SortByName[T any](items []T, key func(T) string) {
	c := collate.New(language.BrazilianPortuguese, collate.IgnoreCase)
	sort.SliceStable(items, func(i, j int) bool {
		return c.CompareString(key(items[i]), key(items[j])) < 0
	})
}

// Slugify turns a company name into a URL and storage safe identifier.
func Slugify(name string) string {
	s := slug.Make(name)
	if s == "" {
		return "empresa"
	}
	return s
}

// IsBlank reports whether s has no visible characters.
func IsBlank(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) }) < 0
}
