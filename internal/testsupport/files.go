package testsupport

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// WriteScript writes an executable shell script under the test's base
// directory and returns its path. Tests calling it are skipped on Windows.
func WriteScript(t testing.TB, dir, name, body string) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", name, err)
	}
	target := filepath.Join(dir, name)
	script := []byte("#!/bin/sh\n" + body + "\n")
	if err := os.WriteFile(target, script, 0o755); err != nil {
		t.Fatalf("write script %s: %v", name, err)
	}
	return target
}
