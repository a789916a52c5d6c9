package version

import "testing"

func TestInfo_Defaults(t *testing.T) {
	bi := Info()
	if bi.Service != "rhat" || bi.Version != "dev" {
		t.Fatalf("unexpected build info: %+v", bi)
	}
}

func TestBuildInfo_StringShortensCommit(t *testing.T) {
	got := BuildInfo{Version: "v1.2.3", Commit: "0123456789abcdef", Date: "2026-01-02"}.String()
	if want := "v1.2.3 (0123456, 2026-01-02)"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}
