package raw

import "testing"

func TestGet_TrimsAndDefaults(t *testing.T) {
	t.Setenv("LOG_SERVICE", "  rhat-worker ")
	t.Setenv("LOG_COMPONENT", "   ")
	log := New().Prefix("LOG_")

	if got := log.Get("SERVICE", "rhat"); got != "rhat-worker" {
		t.Fatalf("SERVICE = %q", got)
	}
	if got := log.Get("COMPONENT", "cluster"); got != "cluster" {
		t.Fatalf("blank COMPONENT = %q, want default", got)
	}
	if got := log.Get("FORMAT", "console"); got != "console" {
		t.Fatalf("unset FORMAT = %q", got)
	}
}

func TestGetBool(t *testing.T) {
	cases := []struct {
		val  string
		def  bool
		want bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{" on ", false, true},
		{"false", true, false},
		{"0", true, false},
		{"Off", true, false},
		{"maybe", true, true},
		{"maybe", false, false},
		{"", true, true},
	}
	log := New().Prefix("LOG_")
	for _, tc := range cases {
		t.Run(tc.val, func(t *testing.T) {
			t.Setenv("LOG_CALLER", tc.val)
			if got := log.GetBool("CALLER", tc.def); got != tc.want {
				t.Fatalf("GetBool(%q, %v) = %v", tc.val, tc.def, got)
			}
		})
	}
}

func TestGetInt_SampleEvery(t *testing.T) {
	cases := map[string]int{
		"":     5,
		"10":   10,
		" 3 ":  3,
		"0":    0,
		"-2":   5,
		"ten":  5,
		"1e3":  5,
		"0x10": 5,
	}
	log := New().Prefix("LOG_")
	for val, want := range cases {
		t.Setenv("LOG_SAMPLE_EVERY", val)
		if got := log.GetInt("SAMPLE_EVERY", 5); got != want {
			t.Fatalf("GetInt(%q) = %d, want %d", val, got, want)
		}
	}
}

func TestPrefix_Nests(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("WORKER_LOG_LEVEL", "debug")

	if got := New().Prefix("LOG_").Get("LEVEL", ""); got != "warn" {
		t.Fatalf("LOG_LEVEL = %q", got)
	}
	if got := New().Prefix("WORKER_").Prefix("LOG_").Get("LEVEL", ""); got != "debug" {
		t.Fatalf("WORKER_LOG_LEVEL = %q", got)
	}
}
