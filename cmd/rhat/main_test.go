package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	perr "rhat/internal/platform/errors"
	kit "rhat/internal/platform/testkit"

	"github.com/google/go-cmp/cmp"
)

// isolate keeps the run off any backend configured in the caller's env
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("SERVICE_PGSQL_ENABLED", "false")
	t.Setenv("SERVICE_CLICKHOUSE_ENABLED", "false")
	t.Setenv("CORE_CLUSTER_SPEC", "")
	t.Setenv("CORE_PLUGINS_DIRS", "")
	t.Setenv("CORE_ARCHIVE_CACHE_DIR", t.TempDir())
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// archives lays out one directory archive per selinux mode and returns the list file
func archives(t *testing.T, modes ...string) string {
	t.Helper()
	root := t.TempDir()
	var list []string
	for i, mode := range modes {
		dir := filepath.Join(root, "host"+string(rune('a'+i)))
		kit.WriteTree(t, dir, map[string]string{"etc/selinux/config": "SELINUX=" + mode + "\nSELINUXTYPE=targeted\n"})
		list = append(list, dir)
	}
	kit.WriteTree(t, root, map[string]string{"input.txt": strings.Join(list, "\n") + "\n"})
	return filepath.Join(root, "input.txt")
}

func TestRoot_MissingPlugin(t *testing.T) {
	isolate(t)
	out, err := execute(t, "-i", "does-not-matter.txt")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != missingRule {
		t.Fatalf("got %q", out)
	}
}

func TestRoot_MissingInput(t *testing.T) {
	isolate(t)
	_, err := execute(t, "-i", filepath.Join(t.TempDir(), "nope.txt"), "-p", "examples.rules.selinux.report")
	kit.MustCode(t, err, perr.ErrorCodeNotFound)
}

func TestRoot_NotARule(t *testing.T) {
	isolate(t)
	input := archives(t, "enforcing")

	for _, name := range []string{"examples.parsers.selinux_config", "no.such.rule"} {
		out, err := execute(t, "-i", input, "-p", name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got, want := strings.TrimSpace(out), name+" is not a rule."; got != want {
			t.Fatalf("got %q want %q", got, want)
		}
	}
}

func TestRoot_NotARuleChecksBeforeInputAndCluster(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	missing := filepath.Join(dir, "nope.txt")
	spec := kit.WriteTree(t, dir, map[string]string{"nats.yaml": "kind: nats\nworkers: 2\nnats:\n  url: nats://127.0.0.1:1\n"})

	out, err := execute(t, "-i", missing, "-c", filepath.Join(spec, "nats.yaml"), "-p", "examples.parsers.selinux_config")
	if err != nil {
		t.Fatalf("want the rule message before any input or cluster error, got %v", err)
	}
	if got, want := strings.TrimSpace(out), "examples.parsers.selinux_config is not a rule."; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestRoot_BadFormat(t *testing.T) {
	isolate(t)
	input := archives(t, "enforcing")
	_, err := execute(t, "-i", input, "-p", "examples.rules.selinux.report", "--format", "xml")
	kit.MustCode(t, err, perr.ErrorCodeInvalidArgument)
}

func TestRoot_BadPartitionSize(t *testing.T) {
	isolate(t)
	input := archives(t, "enforcing")
	_, err := execute(t, "-i", input, "-p", "examples.rules.selinux.report", "--partition-size", "0")
	kit.MustCode(t, err, perr.ErrorCodeInvalidArgument)
}

func TestRoot_JSONReport(t *testing.T) {
	isolate(t)
	input := archives(t, "disabled", "enforcing", "permissive")

	out, err := execute(t, "-i", input, "-p", "examples.rules.selinux.report",
		"--partition-size", "2", "--tmp-dir", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	var rep struct {
		NumArchives int            `json:"num_archives"`
		GrandTotals map[string]int `json:"grand_totals"`
	}
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("stdout is not a json report: %v\n%s", err, out)
	}
	if rep.NumArchives != 3 {
		t.Fatalf("num_archives = %d", rep.NumArchives)
	}
	want := map[string]int{"selinux_disabled": 1, "selinux_permissive": 1, "make_fail": 1}
	if diff := cmp.Diff(want, rep.GrandTotals); diff != "" {
		t.Fatalf("grand totals (-want +got):\n%s", diff)
	}
}

func TestRoot_TableReport(t *testing.T) {
	isolate(t)
	input := archives(t, "disabled")

	out, err := execute(t, "-i", input, "-p", "examples.rules.selinux.report", "--format", "table")
	if err != nil {
		t.Fatal(err)
	}
	kit.MustContain(t, out, "selinux_disabled")
}

func TestPlugins_ListRules(t *testing.T) {
	isolate(t)
	out, err := execute(t, "plugins", "--kind", "rule")
	if err != nil {
		t.Fatal(err)
	}
	kit.MustContain(t, out, "examples.rules.selinux.report")

	rows := 0
	for _, line := range strings.Split(out, "\n") {
		cells := strings.Split(line, "│")
		if len(cells) < 4 || !strings.HasPrefix(strings.TrimSpace(cells[1]), "examples.") {
			continue
		}
		rows++
		if kind := strings.TrimSpace(cells[2]); kind != "rule" {
			t.Fatalf("%s listed with kind %q under --kind rule", strings.TrimSpace(cells[1]), kind)
		}
	}
	if rows != 4 {
		t.Fatalf("listed %d example rules, want 4:\n%s", rows, out)
	}
}

func TestPlugins_UnknownKind(t *testing.T) {
	isolate(t)
	_, err := execute(t, "plugins", "--kind", "widget")
	kit.MustCode(t, err, perr.ErrorCodeInvalidArgument)
}

func TestVersionFlag(t *testing.T) {
	out, err := execute(t, "--version")
	if err != nil {
		t.Fatal(err)
	}
	kit.MustContain(t, out, "rhat")
}
