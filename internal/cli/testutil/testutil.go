// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

// connection variables that must not leak from the developer's shell
var envVars = []string{
	"SURREALDB_ENDPOINT",
	"SURREALDB_USERNAME",
	"SURREALDB_PASSWORD",
	"SURREALDB_NAMESPACE",
	"SURREALDB_DATABASE",
}

// Isolate runs the test in an empty working directory with no connection
// variables set.
func Isolate(t *testing.T) string {
	t.Helper()
	for _, name := range envVars {
		t.Setenv(name, "")
		_ = os.Unsetenv(name)
	}
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

// WriteDump creates an export with rows inserts per table and returns its
// path. Every table gets one definition and its own data section.
func WriteDump(t *testing.T, dir string, tables []string, rows int) string {
	t.Helper()

	var sb strings.Builder
	sb.WriteString("-- ------------------------------\n-- OPTION\n-- ------------------------------\n\nOPTION IMPORT;\n\n")
	for _, name := range tables {
		fmt.Fprintf(&sb, "-- ------------------------------\n-- TABLE: %s\n-- ------------------------------\n\n", name)
		fmt.Fprintf(&sb, "DEFINE TABLE %s TYPE NORMAL SCHEMALESS PERMISSIONS NONE;\n\n", name)
		fmt.Fprintf(&sb, "-- ------------------------------\n-- TABLE DATA: %s\n-- ------------------------------\n\n", name)
		for i := 0; i < rows; i++ {
			fmt.Fprintf(&sb, "INSERT [ { id: %s:%d } ];\n", name, i)
		}
		sb.WriteString("\n")
	}

	path := filepath.Join(dir, "export.surql")
	if err := os.WriteFile(path, []byte(sb.String()), 0600); err != nil {
		t.Fatalf("failed to write dump: %v", err)
	}
	return path
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}
