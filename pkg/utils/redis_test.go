package utils

import "testing"

func TestCapScriptsCompile(t *testing.T) {
	// Compile-time smoke test: scripts should be initialized.
	if capAcquireScript == nil || capReleaseScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}
