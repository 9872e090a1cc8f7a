package registration

import (
	"strings"
	"testing"

	"github.com/foyerhq/foyer/pkg/config"
)

func fields(violations []Violation) []string {
	out := make([]string, 0, len(violations))
	for _, v := range violations {
		out = append(out, v.Field)
	}
	return out
}

func hasField(violations []Violation, field string) bool {
	for _, v := range violations {
		if v.Field == field {
			return true
		}
	}
	return false
}

func TestValidateAcceptsWellFormedRequest(t *testing.T) {
	req := Request{
		Name:            "Ann",
		Email:           "ann@example.com",
		Password:        "Secret123",
		ConfirmPassword: "Secret123",
	}
	if violations := Validate(req, DefaultPolicy()); len(violations) != 0 {
		t.Fatalf("expected no violations, got %v", violations)
	}
}

func TestValidateRequiredFields(t *testing.T) {
	violations := Validate(Request{}, DefaultPolicy())
	for _, field := range []string{"name", "email", "password", "confirm_password"} {
		if !hasField(violations, field) {
			t.Errorf("expected violation for %q, got fields %v", field, fields(violations))
		}
	}
}

func TestValidatePasswordLength(t *testing.T) {
	policy := DefaultPolicy()

	cases := []struct {
		name     string
		password string
		ok       bool
	}{
		{"below minimum", "short", false},
		{"at minimum", "abcdefgh", true},
		{"above minimum", "abcdefghi", true},
		{"at maximum", strings.Repeat("a", 32), true},
		{"above maximum", strings.Repeat("a", 33), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := Request{
				Name:            "Ann",
				Email:           "ann@example.com",
				Password:        tc.password,
				ConfirmPassword: tc.password,
			}
			violations := Validate(req, policy)
			if got := hasField(violations, "password"); got == tc.ok {
				t.Errorf("password %q: violations %v, want ok=%v", tc.password, violations, tc.ok)
			}
		})
	}
}

func TestValidateCharacterClassRules(t *testing.T) {
	policy := PasswordPolicy{
		MinLength:              8,
		MaxLength:              32,
		RequireDigit:           true,
		RequireUppercase:       true,
		RequireNonAlphanumeric: true,
	}

	cases := []struct {
		name     string
		password string
		ok       bool
	}{
		{"all classes present", "Secret123!", true},
		{"missing digit", "Secretttt!", false},
		{"missing uppercase", "secret123!", false},
		{"missing special", "Secret1234", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := Request{
				Name:            "Ann",
				Email:           "ann@example.com",
				Password:        tc.password,
				ConfirmPassword: tc.password,
			}
			violations := Validate(req, policy)
			if got := hasField(violations, "password"); got == tc.ok {
				t.Errorf("password %q: violations %v, want ok=%v", tc.password, violations, tc.ok)
			}
		})
	}
}

func TestValidateCharacterRulesDisabledByDefault(t *testing.T) {
	req := Request{
		Name:            "Ann",
		Email:           "ann@example.com",
		Password:        "alllowercase",
		ConfirmPassword: "alllowercase",
	}
	if violations := Validate(req, DefaultPolicy()); len(violations) != 0 {
		t.Fatalf("expected no violations with relaxed policy, got %v", violations)
	}
}

func TestValidateConfirmMismatchIsIndependent(t *testing.T) {
	req := Request{
		Name:            "Ann",
		Email:           "ann@example.com",
		Password:        "Secret123",
		ConfirmPassword: "Secret124",
	}
	violations := Validate(req, DefaultPolicy())
	if len(violations) != 1 || violations[0].Field != "confirm_password" {
		t.Fatalf("expected single confirm_password violation, got %v", violations)
	}
	if hasField(violations, "password") {
		t.Fatalf("mismatch must not flag the password field: %v", violations)
	}
}

func TestValidateEmailShape(t *testing.T) {
	cases := []struct {
		email string
		ok    bool
	}{
		{"ann@example.com", true},
		{"ann+tag@sub.example.com", true},
		{"not-an-email", false},
		{"missing@dotdomain", false},
		{"@example.com", false},
		{"ann@", false},
	}
	for _, tc := range cases {
		req := Request{
			Name:            "Ann",
			Email:           tc.email,
			Password:        "Secret123",
			ConfirmPassword: "Secret123",
		}
		violations := Validate(req, DefaultPolicy())
		if got := hasField(violations, "email"); got == tc.ok {
			t.Errorf("email %q: violations %v, want ok=%v", tc.email, violations, tc.ok)
		}
	}
}

func TestValidateCollectsMultipleViolationsInOrder(t *testing.T) {
	req := Request{
		Name:            "",
		Email:           "bad",
		Password:        "x",
		ConfirmPassword: "y",
	}
	violations := Validate(req, DefaultPolicy())
	got := fields(violations)
	want := []string{"name", "email", "password", "confirm_password"}
	if len(got) != len(want) {
		t.Fatalf("expected fields %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected fields %v in order, got %v", want, got)
		}
	}
}

func TestPolicyFromConfigFallsBackOnBadBounds(t *testing.T) {
	policy := PolicyFromConfig(config.AppConfig{PasswordMinLength: 0, PasswordMaxLength: 0})
	if policy.MinLength != 8 || policy.MaxLength != 32 {
		t.Fatalf("expected default bounds, got min=%d max=%d", policy.MinLength, policy.MaxLength)
	}
}
