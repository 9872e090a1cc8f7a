package registration

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	"github.com/foyerhq/foyer/pkg/config"
)

// PasswordPolicy holds the configurable rules governing acceptable
// passwords. A policy is loaded once and never mutated afterwards.
type PasswordPolicy struct {
	MinLength              int
	MaxLength              int
	RequireDigit           bool
	RequireUppercase       bool
	RequireNonAlphanumeric bool
}

// DefaultPolicy returns the policy used when no configuration overrides it.
func DefaultPolicy() PasswordPolicy {
	return PasswordPolicy{MinLength: 8, MaxLength: 32}
}

// PolicyFromConfig builds a PasswordPolicy from application configuration.
// Nonsensical bounds fall back to the defaults.
func PolicyFromConfig(cfg config.AppConfig) PasswordPolicy {
	policy := PasswordPolicy{
		MinLength:              cfg.PasswordMinLength,
		MaxLength:              cfg.PasswordMaxLength,
		RequireDigit:           cfg.PasswordRequireDigit,
		RequireUppercase:       cfg.PasswordRequireUpper,
		RequireNonAlphanumeric: cfg.PasswordRequireNonAlnum,
	}
	if policy.MinLength <= 0 {
		policy.MinLength = 8
	}
	if policy.MaxLength < policy.MinLength {
		policy.MaxLength = 32
	}
	return policy
}

// Violation reports a single field-level rule failure.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Request carries raw registration input. It lives for one attempt only.
type Request struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type rule func(req Request, policy PasswordPolicy) *Violation

// rules is the static ordered rule list. Every rule runs on every request;
// policy-guarded rules no-op when their flag is disabled.
var rules = []rule{
	func(req Request, _ PasswordPolicy) *Violation {
		if strings.TrimSpace(req.Name) == "" {
			return &Violation{Field: "name", Message: "Name is required."}
		}
		return nil
	},
	func(req Request, _ PasswordPolicy) *Violation {
		email := strings.TrimSpace(req.Email)
		if email == "" {
			return &Violation{Field: "email", Message: "Email is required."}
		}
		if !validEmail(email) {
			return &Violation{Field: "email", Message: "Email address is not valid."}
		}
		return nil
	},
	func(req Request, _ PasswordPolicy) *Violation {
		if req.Password == "" {
			return &Violation{Field: "password", Message: "Password is required."}
		}
		return nil
	},
	func(req Request, policy PasswordPolicy) *Violation {
		if req.Password == "" {
			return nil
		}
		if n := len(req.Password); n < policy.MinLength || n > policy.MaxLength {
			return &Violation{
				Field:   "password",
				Message: fmt.Sprintf("Password must be between %d and %d characters.", policy.MinLength, policy.MaxLength),
			}
		}
		return nil
	},
	func(req Request, policy PasswordPolicy) *Violation {
		if !policy.RequireDigit {
			return nil
		}
		if !strings.ContainsFunc(req.Password, unicode.IsDigit) {
			return &Violation{Field: "password", Message: "Password must contain a digit."}
		}
		return nil
	},
	func(req Request, policy PasswordPolicy) *Violation {
		if !policy.RequireUppercase {
			return nil
		}
		if !strings.ContainsFunc(req.Password, unicode.IsUpper) {
			return &Violation{Field: "password", Message: "Password must contain an uppercase letter."}
		}
		return nil
	},
	func(req Request, policy PasswordPolicy) *Violation {
		if !policy.RequireNonAlphanumeric {
			return nil
		}
		hasSpecial := strings.ContainsFunc(req.Password, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if !hasSpecial {
			return &Violation{Field: "password", Message: "Password must contain a non-alphanumeric character."}
		}
		return nil
	},
	func(req Request, _ PasswordPolicy) *Violation {
		if req.ConfirmPassword == "" {
			return &Violation{Field: "confirm_password", Message: "Password confirmation is required."}
		}
		if req.ConfirmPassword != req.Password {
			return &Violation{Field: "confirm_password", Message: "Passwords do not match."}
		}
		return nil
	},
}

// Validate runs every rule against the request and collects violations in
// rule order. An empty slice means the request is acceptable.
func Validate(req Request, policy PasswordPolicy) []Violation {
	var violations []Violation
	for _, check := range rules {
		if v := check(req, policy); v != nil {
			violations = append(violations, *v)
		}
	}
	return violations
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	domainPart := email[at+1:]
	return strings.Contains(domainPart, ".")
}
