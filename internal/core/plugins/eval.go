package plugins

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	perr "rhat/internal/platform/errors"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Content is the value a spec produces: one file from the archive
type Content struct {
	Path  string   `expr:"path" json:"path"`
	Text  string   `expr:"text" json:"text"`
	Lines []string `expr:"lines" json:"lines"`
}

// maxSpecBytes caps a single spec read
const maxSpecBytes = 64 << 20

// NewSpec returns a spec reading the first file under the broker root that
// matches one of the glob patterns (slash separated, relative to the root)
func NewSpec(name string, patterns ...string) *Component {
	pats := append([]string(nil), patterns...)
	return &Component{
		Name: name,
		Kind: KindSpec,
		Eval: func(b *Broker, _ Deps) (any, error) {
			if b.Root == "" {
				return nil, nil
			}
			for _, p := range pats {
				matches, err := filepath.Glob(filepath.Join(b.Root, filepath.FromSlash(p)))
				if err != nil {
					return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "bad pattern %q", p)
				}
				sort.Strings(matches)
				for _, m := range matches {
					st, err := os.Stat(m)
					if err != nil || !st.Mode().IsRegular() {
						continue
					}
					if st.Size() > maxSpecBytes {
						return nil, perr.InvalidArgf("%s is larger than %d bytes", m, maxSpecBytes)
					}
					data, err := os.ReadFile(m)
					if err != nil {
						return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "read %s", m)
					}
					text := string(data)
					rel, _ := filepath.Rel(b.Root, m)
					return &Content{
						Path:  filepath.ToSlash(rel),
						Text:  text,
						Lines: strings.Split(strings.TrimRight(text, "\n"), "\n"),
					}, nil
				}
			}
			return nil, nil
		},
	}
}

// ParserMode selects what a parser pattern is applied to
type ParserMode string

// Parser modes
const (
	ModeLine    ParserMode = "line"
	ModeContent ParserMode = "content"
)

// NewParser returns a parser applying re to the content of spec. Named groups
// become fields of the produced map. With all set, every match is returned
// as a list; otherwise the first match wins. No match produces nothing
func NewParser(name, spec string, re *regexp.Regexp, mode ParserMode, all bool) *Component {
	names := re.SubexpNames()
	toMap := func(m []string) map[string]any {
		out := make(map[string]any, len(names))
		out["_match"] = m[0]
		for i, n := range names {
			if i > 0 && n != "" {
				out[n] = m[i]
			}
		}
		return out
	}

	return &Component{
		Name:     name,
		Kind:     KindParser,
		Requires: []string{spec},
		Eval: func(_ *Broker, deps Deps) (any, error) {
			c, ok := deps[spec].(*Content)
			if !ok {
				return nil, perr.InvalidArgf("%s is not a spec", spec)
			}
			var found []map[string]any
			if mode == ModeContent {
				for _, m := range re.FindAllStringSubmatch(c.Text, -1) {
					found = append(found, toMap(m))
					if !all {
						break
					}
				}
			} else {
				for _, line := range c.Lines {
					if m := re.FindStringSubmatch(line); m != nil {
						found = append(found, toMap(m))
						if !all {
							break
						}
					}
				}
			}
			switch {
			case len(found) == 0:
				return nil, nil
			case all:
				return found, nil
			default:
				return found[0], nil
			}
		},
	}
}

// CompileExpr compiles a boolean expression over dependency short names
func CompileExpr(src string) (*vm.Program, error) {
	p, err := expr.Compile(src, expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeValidation, "compile %q", src)
	}
	return p, nil
}

// env exposes dependencies to expressions by short name; missing optional
// dependencies are present as nil
func env(c *Component, deps Deps) map[string]any {
	out := make(map[string]any, len(c.Requires)+len(c.Optional))
	for _, d := range c.edges() {
		out[ShortName(d)] = deps[d]
	}
	return out
}

func runBool(p *vm.Program, vars map[string]any) (bool, error) {
	out, err := expr.Run(p, vars)
	if err != nil {
		return false, err
	}
	v, ok := out.(bool)
	if !ok {
		return false, perr.InvalidArgf("expression returned %T, want bool", out)
	}
	return v, nil
}

// NewCondition returns a condition or incident backed by a boolean expression
func NewCondition(name string, kind Kind, requires, optional []string, p *vm.Program) *Component {
	c := &Component{Name: name, Kind: kind, Requires: requires, Optional: optional}
	c.Eval = func(_ *Broker, deps Deps) (any, error) {
		v, err := runBool(p, env(c, deps))
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	return c
}

// Clause is one candidate response of a rule; a nil When always matches
type Clause struct {
	Type    ResponseType
	Key     string
	When    *vm.Program
	Details map[string]any
}

// NewRule returns a rule producing the response of the first matching clause,
// or nothing when no clause matches
func NewRule(name string, requires, optional []string, clauses []Clause) *Component {
	cl := append([]Clause(nil), clauses...)
	c := &Component{Name: name, Kind: KindRule, Requires: requires, Optional: optional}
	c.Eval = func(_ *Broker, deps Deps) (any, error) {
		vars := env(c, deps)
		for _, k := range cl {
			if k.When != nil {
				ok, err := runBool(k.When, vars)
				if err != nil {
					return nil, err
				}
				if !ok {
					continue
				}
			}
			return &Response{Type: k.Type, Key: k.Key, Details: k.Details}, nil
		}
		return nil, nil
	}
	return c
}
