package password

import (
	_ "embed"
	"strconv"
	"strings"
	"unicode"
)

// Symbols is the set of characters that satisfy the symbol rule.
const Symbols = "!@#$%^&*()-_=+[]{};:'\",.<>/?\\|`~"

// Rule identifiers reported in [Violation.Rule].
const (
	RuleMinLength      = "min_length"
	RuleMaxLength      = "max_length"
	RuleUppercase      = "uppercase"
	RuleLowercase      = "lowercase"
	RuleDigit          = "digit"
	RuleSymbol         = "symbol"
	RuleCommonPassword = "common_password"
)

// MaxLength bounds the input handed to the hasher.
const MaxLength = 128

//go:embed common_passwords.txt
var commonPasswordList string

// Violation is one failed strength rule.
type Violation struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Policy enforces the password strength rules.
type Policy struct {
	minLength int
	blacklist map[string]struct{}
}

// NewPolicy builds a policy with the embedded common-password list plus any
// extra entries. Entries are compared case-insensitively.
func NewPolicy(minLength int, extraBlacklist ...string) *Policy {
	if minLength <= 0 {
		minLength = 12
	}

	p := &Policy{
		minLength: minLength,
		blacklist: make(map[string]struct{}, 128),
	}
	for _, line := range strings.Split(commonPasswordList, "\n") {
		p.add(line)
	}
	for _, entry := range extraBlacklist {
		p.add(entry)
	}
	return p
}

func (p *Policy) add(entry string) {
	entry = strings.ToLower(strings.TrimSpace(entry))
	if entry != "" {
		p.blacklist[entry] = struct{}{}
	}
}

// MinLength returns the configured minimum length in characters.
func (p *Policy) MinLength() int { return p.minLength }

// Validate checks every rule and returns all violations. A nil result means
// the password is acceptable.
func (p *Policy) Validate(password string) []Violation {
	var violations []Violation
	var upper, lower, digit, symbol bool

	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(Symbols, r):
			symbol = true
		}
	}

	length := len([]rune(password))
	if length < p.minLength {
		violations = append(violations, Violation{
			Rule:    RuleMinLength,
			Message: "must be at least " + strconv.Itoa(p.minLength) + " characters",
		})
	}
	if len(password) > MaxLength {
		violations = append(violations, Violation{
			Rule:    RuleMaxLength,
			Message: "must be at most " + strconv.Itoa(MaxLength) + " bytes",
		})
	}
	if !upper {
		violations = append(violations, Violation{Rule: RuleUppercase, Message: "must contain an uppercase letter"})
	}
	if !lower {
		violations = append(violations, Violation{Rule: RuleLowercase, Message: "must contain a lowercase letter"})
	}
	if !digit {
		violations = append(violations, Violation{Rule: RuleDigit, Message: "must contain a digit"})
	}
	if !symbol {
		violations = append(violations, Violation{Rule: RuleSymbol, Message: "must contain a symbol from " + Symbols})
	}
	if _, common := p.blacklist[strings.ToLower(password)]; common {
		violations = append(violations, Violation{Rule: RuleCommonPassword, Message: "is too common"})
	}

	return violations
}
