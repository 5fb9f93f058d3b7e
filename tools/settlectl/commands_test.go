package main

import (
	"bytes"
	"strings"
	"testing"

	"retail-settlement/internal/auth"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPeriodsCommand_MonthlyFromMidMonthAnchor(t *testing.T) {
	out, err := execute(t, "periods", "--anchor", "2025-01-16", "--frequency", "monthly", "--until", "2025-03-01")
	if err != nil {
		t.Fatalf("periods: %v", err)
	}
	want := "2025-01-16 2025-02-01\n2025-02-01 2025-03-01\n"
	if out != want {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestPeriodsCommand_WeeklyAlignsToMonday(t *testing.T) {
	// 2025-01-01 is a Wednesday.
	out, err := execute(t, "periods", "--anchor", "2025-01-01", "--frequency", "weekly", "--until", "2025-01-13")
	if err != nil {
		t.Fatalf("periods: %v", err)
	}
	want := "2025-01-01 2025-01-06\n2025-01-06 2025-01-13\n"
	if out != want {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestPeriodsCommand_RejectsUnknownFrequency(t *testing.T) {
	if _, err := execute(t, "periods", "--anchor", "2025-01-01", "--frequency", "hourly", "--until", "2025-02-01"); err == nil {
		t.Fatalf("expected error for unknown frequency")
	}
}

func TestTokenCommand_IssuesParsableToken(t *testing.T) {
	out, err := execute(t, "token", "--secret", "s3cret", "--tenant", "supplier-a", "--role", "Operator", "--subject", "ops")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	claims, err := auth.ParseJWT(strings.TrimSpace(out), []byte("s3cret"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.TenantID != "supplier-a" || claims.Role != string(auth.RoleOperator) || claims.Subject != "ops" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestTokenCommand_RejectsUnknownRole(t *testing.T) {
	if _, err := execute(t, "token", "--secret", "s3cret", "--role", "root"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestAdvanceCommand_RequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PG_DSN", "")
	if _, err := execute(t, "advance", "571313100000000001"); err == nil {
		t.Fatalf("expected error without a database")
	}
}
