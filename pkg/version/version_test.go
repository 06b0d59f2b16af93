package version

import (
	"runtime"
	"strings"
	"testing"
)

func withBuild(t *testing.T, version, buildTime, commit string) {
	t.Helper()
	v, b, c := Version, BuildTime, Commit
	t.Cleanup(func() { Version, BuildTime, Commit = v, b, c })
	Version, BuildTime, Commit = version, buildTime, commit
}

func TestInfo(t *testing.T) {
	tests := []struct {
		commit string
		want   string
	}{
		{"abcdef0123456789", "(abcdef01)"},
		{"abc123", "(abc123)"},
	}
	for _, tt := range tests {
		withBuild(t, "2.1.0", "2026-03-01", tt.commit)
		info := Info()
		if !strings.HasPrefix(info, "ARMIS 2.1.0 ") {
			t.Fatalf("Info() = %q, want ARMIS prefix with version", info)
		}
		for _, part := range []string{tt.want, "2026-03-01", runtime.GOOS + "/" + runtime.GOARCH} {
			if !strings.Contains(info, part) {
				t.Errorf("Info() = %q, missing %q", info, part)
			}
		}
	}
}

func TestMap(t *testing.T) {
	withBuild(t, "2.1.0", "2026-03-01", "abcdef0123456789")
	m := Map()
	want := map[string]string{
		"version":   "2.1.0",
		"buildTime": "2026-03-01",
		"commit":    "abcdef0123456789",
		"os":        runtime.GOOS,
		"arch":      runtime.GOARCH,
	}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("Map()[%q] = %q, want %q", k, m[k], v)
		}
	}
	if !strings.HasPrefix(m["goVersion"], "go") {
		t.Errorf("goVersion = %q", m["goVersion"])
	}
}
