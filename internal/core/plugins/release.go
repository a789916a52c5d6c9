package plugins

import (
	"regexp"
	"strconv"
	"strings"

	perr "rhat/internal/platform/errors"
)

// Built-in component names
const (
	SpecRedHatRelease = "insights.specs.redhat_release"
	SpecUname         = "insights.specs.uname"
	RedHatRelease     = "insights.combiners.redhat_release.RedHatRelease"
)

// Release is the OS release of an archive. Minor is -1 when only the major
// version could be determined
type Release struct {
	Product string `expr:"product" json:"product"`
	Major   int    `expr:"major" json:"major"`
	Minor   int    `expr:"minor" json:"minor"`
}

var (
	reReleaseFile = regexp.MustCompile(`^(.*?)\s+release\s+(\d+)(?:\.(\d+))?`)
	reUnameEL     = regexp.MustCompile(`\.el(\d+)(?:_(\d+))?`)
)

// ParseRedHatRelease parses an /etc/redhat-release line
func ParseRedHatRelease(s string) (Release, bool) {
	m := reReleaseFile.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Release{}, false
	}
	rel := Release{Product: strings.TrimSpace(m[1]), Minor: -1}
	rel.Major, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		rel.Minor, _ = strconv.Atoi(m[3])
	}
	return rel, true
}

// ParseUnameRelease derives the release from an elN[_M] kernel tag in uname output
func ParseUnameRelease(s string) (Release, bool) {
	m := reUnameEL.FindStringSubmatch(s)
	if m == nil {
		return Release{}, false
	}
	rel := Release{Product: "Red Hat Enterprise Linux", Minor: -1}
	rel.Major, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		rel.Minor, _ = strconv.Atoi(m[2])
	}
	return rel, true
}

// Builtins returns the release specs and combiner every rule graph is joined with
func Builtins() []*Component {
	comb := &Component{
		Name:     RedHatRelease,
		Kind:     KindCombiner,
		Optional: []string{SpecRedHatRelease, SpecUname},
		Doc:      "OS major/minor from etc/redhat-release, falling back to the uname kernel tag",
	}
	comb.Eval = func(_ *Broker, deps Deps) (any, error) {
		if c, ok := deps[SpecRedHatRelease].(*Content); ok {
			if rel, ok := ParseRedHatRelease(c.Text); ok {
				return rel, nil
			}
		}
		if c, ok := deps[SpecUname].(*Content); ok {
			if rel, ok := ParseUnameRelease(c.Text); ok {
				return rel, nil
			}
		}
		return nil, perr.NotFoundf("no usable redhat-release or uname content")
	}

	return []*Component{
		NewSpec(SpecRedHatRelease, "etc/redhat-release"),
		NewSpec(SpecUname, "insights_commands/uname_-a", "uname"),
		comb,
	}
}
