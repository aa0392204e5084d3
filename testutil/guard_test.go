package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDomainImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"legacycore/pkg/domain", true},
		{"legacycore/pkg/domain@v1", true},
		{"legacycore/pkg/notdomain", false},
		{"legacycore/internal/core", false},
	}
	for _, c := range cases {
		if got := DomainImportForbidden(c.in); got != c.want {
			t.Fatalf("DomainImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestInternalImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"legacycore/internal/core", true},
		{"legacycore/internal/infra/blob/s3", true},
		{"legacycore/pkg/domain", false},
		{"net/http/internal", false},
	}
	for _, c := range cases {
		if got := InternalImportForbidden(c.in); got != c.want {
			t.Fatalf("InternalImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestThirdPartyImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"github.com/stretchr/testify/require", true},
		{"golang.org/x/crypto/argon2", true},
		{"legacycore/internal/crypto", false},
		{"crypto/sha256", false},
		{"encoding/hex", false},
	}
	for _, c := range cases {
		if got := ThirdPartyImportForbidden(c.in); got != c.want {
			t.Fatalf("ThirdPartyImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestAssertNoDirectImportsPasses(t *testing.T) {
	dir := t.TempDir()
	src := []byte("package tmp\nimport \"fmt\"\nfunc X(){fmt.Println(1)}")
	if err := os.WriteFile(filepath.Join(dir, "x.go"), src, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	AssertNoDirectImports(t, dir, func(string) bool { return false }, "none")
}

func TestDirectImportViolationsReportsOffenders(t *testing.T) {
	dir := t.TempDir()
	src := []byte("package tmp\nimport _ \"legacycore/pkg/domain\"\n")
	if err := os.WriteFile(filepath.Join(dir, "x.go"), src, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Test files are exempt from the scan.
	testSrc := []byte("package tmp\nimport _ \"legacycore/pkg/domain\"\n")
	if err := os.WriteFile(filepath.Join(dir, "x_test.go"), testSrc, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	viols, err := directImportViolations(dir, DomainImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 {
		t.Fatalf("expected 1 violation, got %v", viols)
	}
	if viols[0] != "legacycore/pkg/domain (in x.go)" {
		t.Fatalf("unexpected violation %q", viols[0])
	}
}
