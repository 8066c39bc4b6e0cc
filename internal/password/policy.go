// Package password implements the account password policy and hashing.
package password

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

const MinLength = 8

// Rule names a single structural or deny-list requirement.
type Rule string

const (
	RuleLength    Rule = "length"
	RuleUpper     Rule = "uppercase"
	RuleLower     Rule = "lowercase"
	RuleDigit     Rule = "digit"
	RuleSpecial   Rule = "special"
	RuleForbidden Rule = "forbidden"
)

// PolicyError describes one violated rule.
type PolicyError struct {
	Rule    Rule   `json:"rule"`
	Message string `json:"message"`
}

func (e *PolicyError) Error() string {
	return e.Message
}

var commonPasswords = []string{
	"password", "passw0rd", "123456", "12345678", "qwerty", "letmein", "welcome",
	"admin", "iloveyou", "monkey", "dragon", "football", "baseball", "sunshine",
	"princess", "master", "shadow", "trustno1", "superman", "batman", "login",
	"starwars", "whatever", "freedom", "secret",
}

var sequences = []string{
	"qwertyuiop", "asdfghjkl", "zxcvbnm", "qwerty", "asdf", "zxcv",
	"abcdef", "abcd", "1234", "2345", "3456", "4567", "5678", "6789", "7890",
	"0987", "9876", "8765", "7654", "6543", "5432", "4321",
	"1qaz", "2wsx", "!@#$",
}

// IsForbidden reports whether the candidate contains, case-insensitively, a
// common password or a keyboard/alphabet sequence.
func IsForbidden(candidate string) bool {
	folded := cases.Fold().String(candidate)
	for _, p := range commonPasswords {
		if strings.Contains(folded, p) {
			return true
		}
	}
	for _, s := range sequences {
		if strings.Contains(folded, s) {
			return true
		}
	}
	return false
}

type check struct {
	rule    Rule
	message string
	ok      func(string) bool
}

var checks = []check{
	{RuleLength, "Password must be at least 8 characters", func(s string) bool { return len([]rune(s)) >= MinLength }},
	{RuleUpper, "Password must contain an uppercase letter", hasRune(unicode.IsUpper)},
	{RuleLower, "Password must contain a lowercase letter", hasRune(unicode.IsLower)},
	{RuleDigit, "Password must contain a number", hasRune(unicode.IsDigit)},
	{RuleSpecial, "Password must contain a special character", hasRune(isSpecial)},
	{RuleForbidden, "Password is too common or contains an easy-to-guess sequence", func(s string) bool { return !IsForbidden(s) }},
}

func hasRune(pred func(rune) bool) func(string) bool {
	return func(s string) bool {
		return strings.IndexFunc(s, pred) >= 0
	}
}

func isSpecial(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r)
}

// Validate returns the first violated rule as a *PolicyError, or nil.
func Validate(candidate string) error {
	for _, c := range checks {
		if !c.ok(candidate) {
			return &PolicyError{Rule: c.rule, Message: c.message}
		}
	}
	return nil
}

// Violations returns every violated rule in evaluation order.
func Violations(candidate string) []PolicyError {
	var out []PolicyError
	for _, c := range checks {
		if !c.ok(candidate) {
			out = append(out, PolicyError{Rule: c.rule, Message: c.message})
		}
	}
	return out
}
