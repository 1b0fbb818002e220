package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	orig := Version
	Version = "1.2.3"
	defer func() { Version = orig }()

	info := Get()
	if info.Version != "1.2.3" {
		t.Errorf("Version = %q", info.Version)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q", info.GoVersion)
	}
	if s := info.String(); !strings.HasPrefix(s, "motion-report 1.2.3 (") {
		t.Errorf("String() = %q", s)
	}
}
