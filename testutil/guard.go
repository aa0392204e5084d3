// Package testutil enforces import-boundary invariants in package tests. The
// key primitives (shamir, crypto) must stay below the domain layer, and the
// domain package must stay a leaf that never reaches into internal/.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// AssertNoDirectImports scans the non-test .go files in dir (typically "."
// from within the package under test) and fails if any import path satisfies
// the forbidden predicate. It does not follow build tags.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(viols) > 0 {
		t.Fatalf("forbidden direct imports detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

// DomainImportForbidden matches imports of the domain entity package. The
// shamir and crypto packages are pure primitives and must not know about
// domain records.
func DomainImportForbidden(path string) bool {
	return strings.HasSuffix(path, "/pkg/domain") || strings.Contains(path, "/pkg/domain@")
}

// InternalImportForbidden matches any import under internal/. The domain
// package sits at the bottom of the dependency graph; services and stores
// import it, never the other way around.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "legacycore/internal/")
}

// ThirdPartyImportForbidden matches any non-stdlib, non-module import. Key
// material handling in shamir must not pick up outside dependencies.
func ThirdPartyImportForbidden(path string) bool {
	if !strings.Contains(path, ".") {
		return false
	}
	return !strings.HasPrefix(path, "legacycore/")
}

func directImportViolations(dir string, forbidden func(importPath string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		fileAst, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range fileAst.Imports {
			ip := strings.Trim(imp.Path.Value, "\"")
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+name+")")
			}
		}
	}
	return viols, nil
}
