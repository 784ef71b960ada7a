package report

import (
	"fmt"
	"strings"
)

// Check names one per-archive test.
type Check string

const (
	CheckCopyright       Check = "copyright"
	CheckCopyrightTOC    Check = "copyright-toc"
	CheckTitlepage       Check = "titlepage"
	CheckDoubleTitlepage Check = "double-titlepage"
	CheckSegmentation    Check = "segmentation"
	CheckEmptyBlocks     Check = "empty-blocks"
	CheckCSSLinks        Check = "css-links"
	CheckCoverSize       Check = "cover-size"
	CheckVersion         Check = "version"
	CheckWatermarks      Check = "watermarks"
	CheckPNG             Check = "png"
)

// AllChecks lists every check in report order.
var AllChecks = []Check{
	CheckCopyright,
	CheckCopyrightTOC,
	CheckTitlepage,
	CheckDoubleTitlepage,
	CheckSegmentation,
	CheckEmptyBlocks,
	CheckCSSLinks,
	CheckCoverSize,
	CheckVersion,
	CheckWatermarks,
	CheckPNG,
}

// ParseChecks converts names into checks. Blank names are ignored and an
// empty list selects every check.
func ParseChecks(names []string) ([]Check, error) {
	known := make(map[Check]bool, len(AllChecks))
	for _, c := range AllChecks {
		known[c] = true
	}

	var out []Check
	seen := make(map[Check]bool)
	for _, n := range names {
		c := Check(strings.ToLower(strings.TrimSpace(n)))
		if c == "" || seen[c] {
			continue
		}
		if !known[c] {
			return nil, fmt.Errorf("unknown check %q", n)
		}
		seen[c] = true
		out = append(out, c)
	}
	if len(out) == 0 {
		return append([]Check(nil), AllChecks...), nil
	}
	return out, nil
}

type checkSet map[Check]bool

func newCheckSet(checks []Check) checkSet {
	if len(checks) == 0 {
		checks = AllChecks
	}
	s := make(checkSet, len(checks))
	for _, c := range checks {
		s[c] = true
	}
	return s
}

func (s checkSet) has(c Check) bool {
	return s[c]
}
