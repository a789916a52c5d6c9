package plugins

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	perr "rhat/internal/platform/errors"

	"gopkg.in/yaml.v3"
)

//go:embed packs/*.yaml
var embedded embed.FS

const packVersion = 1

type rawClause struct {
	Type    string         `yaml:"type"`
	When    string         `yaml:"when"`
	Key     string         `yaml:"key"`
	Details map[string]any `yaml:"details"`
}

type rawComponent struct {
	Name      string      `yaml:"name"`
	Kind      string      `yaml:"kind"`
	Doc       string      `yaml:"doc"`
	Requires  []string    `yaml:"requires"`
	Optional  []string    `yaml:"optional"`
	Paths     []string    `yaml:"paths"`
	Pattern   string      `yaml:"pattern"`
	Mode      string      `yaml:"mode"`
	All       bool        `yaml:"all"`
	Expr      string      `yaml:"expr"`
	Responses []rawClause `yaml:"responses"`
}

type rawPack struct {
	Version    int            `yaml:"version"`
	Components []rawComponent `yaml:"components"`
}

// ParsePack parses and compiles one YAML pack. src names the pack in errors
func ParsePack(src string, data []byte) ([]*Component, error) {
	var rp rawPack
	if err := yaml.Unmarshal(data, &rp); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeValidation, "plugins: parse %s", src)
	}
	if rp.Version != packVersion {
		return nil, perr.Validationf("plugins: %s: unsupported pack version %d (want %d)", src, rp.Version, packVersion)
	}

	out := make([]*Component, 0, len(rp.Components))
	for i, rc := range rp.Components {
		c, err := compile(rc)
		if err != nil {
			return nil, perr.WithField(perr.Wrapf(err, perr.CodeOf(err), "plugins: %s: component %d", src, i), rc.Name)
		}
		out = append(out, c)
	}
	return out, nil
}

func compile(rc rawComponent) (*Component, error) {
	name := strings.TrimSpace(rc.Name)
	if name == "" {
		return nil, perr.Validationf("missing name")
	}
	if err := checkShortNames(name, rc.Requires, rc.Optional); err != nil {
		return nil, err
	}

	var c *Component
	switch Kind(rc.Kind) {
	case KindSpec:
		if len(rc.Paths) == 0 {
			return nil, perr.Validationf("%s: spec needs paths", name)
		}
		c = NewSpec(name, rc.Paths...)

	case KindParser:
		if len(rc.Requires) != 1 {
			return nil, perr.Validationf("%s: parser needs exactly one spec in requires", name)
		}
		re, err := regexp.Compile(rc.Pattern)
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeValidation, "%s: pattern", name)
		}
		mode := ParserMode(rc.Mode)
		switch mode {
		case "":
			mode = ModeLine
		case ModeLine, ModeContent:
		default:
			return nil, perr.Validationf("%s: unknown parser mode %q", name, rc.Mode)
		}
		c = NewParser(name, rc.Requires[0], re, mode, rc.All)

	case KindCondition, KindIncident:
		if strings.TrimSpace(rc.Expr) == "" {
			return nil, perr.Validationf("%s: %s needs expr", name, rc.Kind)
		}
		p, err := CompileExpr(rc.Expr)
		if err != nil {
			return nil, err
		}
		c = NewCondition(name, Kind(rc.Kind), rc.Requires, rc.Optional, p)

	case KindRule:
		if len(rc.Responses) == 0 {
			return nil, perr.Validationf("%s: rule needs responses", name)
		}
		clauses := make([]Clause, 0, len(rc.Responses))
		for _, r := range rc.Responses {
			t := ResponseType(r.Type)
			if !t.Valid() {
				return nil, perr.Validationf("%s: unknown response type %q", name, r.Type)
			}
			cl := Clause{Type: t, Key: r.Key, Details: r.Details}
			if strings.TrimSpace(r.When) != "" {
				p, err := CompileExpr(r.When)
				if err != nil {
					return nil, err
				}
				cl.When = p
			}
			clauses = append(clauses, cl)
		}
		c = NewRule(name, rc.Requires, rc.Optional, clauses)

	case KindCombiner:
		return nil, perr.Validationf("%s: combiners are built in and cannot be declared in packs", name)

	default:
		return nil, perr.Validationf("%s: unknown kind %q", name, rc.Kind)
	}

	c.Doc = rc.Doc
	return c, nil
}

// checkShortNames rejects dependency lists whose short names collide, since
// expressions address dependencies by short name
func checkShortNames(name string, lists ...[]string) error {
	seen := make(map[string]string)
	for _, l := range lists {
		for _, d := range l {
			s := ShortName(d)
			if prev, ok := seen[s]; ok && prev != d {
				return perr.Validationf("%s: dependencies %s and %s share short name %q", name, prev, d, s)
			}
			seen[s] = d
		}
	}
	return nil
}

// loadFS parses every *.yaml / *.yml file of fsys in name order
func loadFS(fsys fs.FS, label string) ([]*Component, error) {
	var files []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ext := filepath.Ext(p); !d.IsDir() && (ext == ".yaml" || ext == ".yml") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeNotFound, "plugins: walk %s", label)
	}
	sort.Strings(files)

	var out []*Component
	for _, f := range files {
		data, err := fs.ReadFile(fsys, f)
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "plugins: read %s/%s", label, f)
		}
		cs, err := ParsePack(label+"/"+f, data)
		if err != nil {
			return nil, err
		}
		out = append(out, cs...)
	}
	return out, nil
}

// Default returns the components of the packs compiled into the binary
func Default() ([]*Component, error) {
	sub, err := fs.Sub(embedded, "packs")
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeUnknown, "plugins: embedded packs")
	}
	return loadFS(sub, "embedded")
}

// LoadDir returns the components of every pack file under dir
func LoadDir(dir string) ([]*Component, error) {
	st, err := os.Stat(dir)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeNotFound, "plugins: pack dir %s", dir)
	}
	if !st.IsDir() {
		return nil, perr.InvalidArgf("plugins: %s is not a directory", dir)
	}
	return loadFS(os.DirFS(dir), dir)
}
