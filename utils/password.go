package utils

import (
	"regexp"
	"unicode/utf8"
)

// PasswordRule is one requirement of the forced password change.
type PasswordRule struct {
	Label string
	Test  func(string) bool
}

var (
	upperRe   = regexp.MustCompile(`[A-Z]`)
	lowerRe   = regexp.MustCompile(`[a-z]`)
	digitRe   = regexp.MustCompile(`\d`)
	specialRe = regexp.MustCompile(`[!@#$%^&*]`)
)

var PasswordRules = []PasswordRule{
	{"Mínimo de 8 caracteres", func(s string) bool { return utf8.RuneCountInString(s) >= 8 }},
	{"Pelo menos 1 letra maiúscula", upperRe.MatchString},
	{"Pelo menos 1 letra minúscula", lowerRe.MatchString},
	{"Pelo menos 1 número", digitRe.MatchString},
	{"Pelo menos 1 caractere especial (!@#$%^&*)", specialRe.MatchString},
}

// CheckPassword returns the labels of every rule pw fails, in rule order.
func CheckPassword(pw string) []string {
	var failed []string
	for _, r := range PasswordRules {
		if !r.Test(pw) {
			failed = append(failed, r.Label)
		}
	}
	return failed
}
