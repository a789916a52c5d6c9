package plugins

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	perr "rhat/internal/platform/errors"
	kit "rhat/internal/platform/testkit"
)

func TestDefault_CompilesEmbeddedPacks(t *testing.T) {
	cs, err := Default()
	if err != nil {
		t.Fatalf("Default(): %v", err)
	}
	rules := 0
	for _, c := range cs {
		if c.IsRule() {
			rules++
		}
	}
	if rules == 0 {
		t.Fatalf("expected at least one rule in the embedded packs")
	}
}

func TestLoader_OnceAndLookup(t *testing.T) {
	l := NewLoader()
	if l.Loaded() {
		t.Fatalf("Loaded() before first use")
	}
	r1, err := l.Registry()
	if err != nil {
		t.Fatalf("Registry: %v", err)
	}
	r2, _ := l.Registry()
	if r1 != r2 || !l.Loaded() {
		t.Fatalf("Registry() should load once and return the same registry")
	}
	if _, err := r1.Rule("examples.rules.bash.report"); err != nil {
		t.Fatalf("example rule missing: %v", err)
	}
	if _, err := r1.Get(RedHatRelease); err != nil {
		t.Fatalf("built-in release combiner missing: %v", err)
	}
}

func TestLoader_ExtraDir(t *testing.T) {
	dir := kit.WriteTree(t, t.TempDir(), map[string]string{
		"site.yaml": `version: 1
components:
  - name: site.specs.motd
    kind: spec
    paths: [etc/motd]
  - name: site.rules.motd.present
    kind: rule
    requires: [site.specs.motd]
    responses:
      - type: make_info
        key: MOTD
`,
		"README.txt": "ignored",
	})
	reg, err := NewLoader(dir).Registry()
	if err != nil {
		t.Fatalf("Registry: %v", err)
	}
	if _, err := reg.Rule("site.rules.motd.present"); err != nil {
		t.Fatalf("site rule missing: %v", err)
	}

	_, err = NewLoader(filepath.Join(dir, "nope")).Registry()
	kit.MustCode(t, err, perr.ErrorCodeNotFound)
}

func TestParsePack_Rejects(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"version", "version: 2\ncomponents: []\n"},
		{"syntax", "version: [\n"},
		{"no name", "version: 1\ncomponents:\n  - kind: spec\n    paths: [a]\n"},
		{"spec without paths", "version: 1\ncomponents:\n  - name: s\n    kind: spec\n"},
		{"bad regex", "version: 1\ncomponents:\n  - name: p\n    kind: parser\n    requires: [s]\n    pattern: '('\n"},
		{"parser two specs", "version: 1\ncomponents:\n  - name: p\n    kind: parser\n    requires: [s, t]\n    pattern: 'x'\n"},
		{"bad mode", "version: 1\ncomponents:\n  - name: p\n    kind: parser\n    requires: [s]\n    pattern: 'x'\n    mode: word\n"},
		{"bad expr", "version: 1\ncomponents:\n  - name: c\n    kind: condition\n    expr: 'a &&'\n"},
		{"empty expr", "version: 1\ncomponents:\n  - name: c\n    kind: condition\n"},
		{"combiner", "version: 1\ncomponents:\n  - name: c\n    kind: combiner\n"},
		{"unknown kind", "version: 1\ncomponents:\n  - name: c\n    kind: widget\n"},
		{"rule no responses", "version: 1\ncomponents:\n  - name: r\n    kind: rule\n"},
		{"bad response", "version: 1\ncomponents:\n  - name: r\n    kind: rule\n    responses:\n      - type: make_maybe\n"},
		{"short name clash", "version: 1\ncomponents:\n  - name: c\n    kind: condition\n    requires: [a.x, b.x]\n    expr: 'true'\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kit.MustCode(t, func() error { _, err := ParsePack(tc.name, []byte(tc.yaml)); return err }(), perr.ErrorCodeValidation)
		})
	}
}

func TestDefaultPack_EvaluatesAgainstTree(t *testing.T) {
	reg, err := NewLoader().Registry()
	if err != nil {
		t.Fatalf("Registry: %v", err)
	}

	root := kit.WriteTree(t, t.TempDir(), map[string]string{
		"etc/redhat-release":          "Red Hat Enterprise Linux Server release 7.9 (Maipo)\n",
		"insights_commands/rpm_-qa":   "kernel-3.10.0-1160.el7.x86_64\nbash-4.2.46-34.el7.x86_64\n",
		"etc/selinux/config":          "# comment\nSELINUX=Disabled\nSELINUXTYPE=targeted\n",
		"insights_commands/uname_-a": "Linux host 3.10.0-1160.el7.x86_64 #1 SMP x86_64 GNU/Linux\n",
	})

	cases := []struct {
		rule    string
		key     string
		typ     ResponseType
		checks  map[string]bool
		missing []string
	}{
		{
			rule:   "examples.rules.bash.report",
			key:    "BASH_OUTDATED_RHEL7",
			typ:    ResponseFail,
			checks: map[string]bool{"examples.rules.bash.old_bash": true, "examples.rules.bash.bash_on_rhel7": true},
		},
		{
			rule: "examples.rules.selinux.report",
			key:  "SELINUX_DISABLED",
			typ:  ResponseFail,
			checks: map[string]bool{
				"examples.rules.selinux.selinux_disabled":   true,
				"examples.rules.selinux.selinux_permissive": false,
			},
		},
		{
			rule:    "examples.rules.sshd.report",
			missing: []string{"examples.rules.sshd.root_login_allowed", "examples.rules.sshd.report"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.rule, func(t *testing.T) {
			g, err := reg.DependencyGraph(tc.rule, RedHatRelease)
			if err != nil {
				t.Fatalf("DependencyGraph: %v", err)
			}
			b := NewBroker(root)
			if err := Run(context.Background(), g, b); err != nil {
				t.Fatalf("Run: %v", err)
			}
			for name, want := range tc.checks {
				if v, ok := b.Get(name); !ok || v != want {
					t.Fatalf("%s = %v (present=%v), want %v", name, v, ok, want)
				}
			}
			for _, name := range tc.missing {
				if b.Has(name) {
					t.Fatalf("%s should not have run", name)
				}
			}
			if tc.key != "" {
				v, _ := b.Get(tc.rule)
				resp, ok := v.(*Response)
				if !ok || resp.Key != tc.key || resp.Type != tc.typ {
					t.Fatalf("response = %+v, want %s/%s", v, tc.typ, tc.key)
				}
			}
			rel, ok := b.Get(RedHatRelease)
			if !ok || rel.(Release).Major != 7 || rel.(Release).Minor != 9 {
				t.Fatalf("release = %+v, want 7.9", rel)
			}
		})
	}
}

func TestSpec_FirstRegularMatch(t *testing.T) {
	root := kit.WriteTree(t, t.TempDir(), map[string]string{
		"insights_commands/rpm_-qa_--qf": "bash-5.1.8-6.el9.x86_64\n",
	})
	if err := os.MkdirAll(filepath.Join(root, "insights_commands", "rpm_-qa_dir"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	s := NewSpec("s", "insights_commands/rpm_-qa*")
	v, err := s.Eval(NewBroker(root), nil)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	c := v.(*Content)
	if c.Path != "insights_commands/rpm_-qa_--qf" || len(c.Lines) != 1 {
		t.Fatalf("content = %+v", c)
	}
}
