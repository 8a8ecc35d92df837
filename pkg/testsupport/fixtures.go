package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// UpdateGoldenEnv names the environment variable that makes CompareWithGolden
// rewrite golden files instead of comparing against them.
const UpdateGoldenEnv = "UPDATE_GOLDEN"

// SQLiteDSN returns a shared-cache in-memory SQLite DSN private to the running
// test and handle. Every connection opened with it sees the same database
// until the last one closes.
func SQLiteDSN(tb testing.TB, handle string) string {
	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(tb.Name())
	return fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, handle)
}

// WriteConfig writes content to a file called name in a directory removed
// after the test and returns its path. The extension of name picks the
// format config.Load decodes.
func WriteConfig(tb testing.TB, name, content string) string {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		tb.Fatalf("failed to write config %s: %v", path, err)
	}
	return path
}

// LoadGolden loads expected test output from a golden file.
// The path is relative to the test package directory.
func LoadGolden(tb testing.TB, path string) []byte {
	tb.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		tb.Fatalf("failed to load golden file from %s: %v", path, err)
	}
	return data
}

// WriteGolden writes test output to a golden file.
func WriteGolden(tb testing.TB, path string, data []byte) {
	tb.Helper()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		tb.Fatalf("failed to create directory %s: %v", dir, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		tb.Fatalf("failed to write golden file to %s: %v", path, err)
	}
}

// CompareWithGolden compares actual with the golden file at path. With
// UPDATE_GOLDEN set the golden file is rewritten instead.
func CompareWithGolden(tb testing.TB, path string, actual []byte) {
	tb.Helper()

	if os.Getenv(UpdateGoldenEnv) != "" {
		tb.Logf("updating golden file %s", path)
		WriteGolden(tb, path, actual)
		return
	}

	expected := LoadGolden(tb, path)
	if string(actual) != string(expected) {
		tb.Errorf("output mismatch for %s:\nExpected:\n%s\nActual:\n%s", path, expected, actual)
	}
}

// GoldenPath constructs a path to a golden file relative to the testdata directory.
func GoldenPath(filename string) string {
	return filepath.Join("testdata", "golden", filename)
}
