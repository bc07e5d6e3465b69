package detector

import (
	"fmt"
	"strings"
)

// Pick selects among the pages a TitleSearch accepts.
type Pick int

const (
	// PickFirst takes the first accepted page.
	PickFirst Pick = iota
	// PickLast takes the last accepted page.
	PickLast
	// PickBest takes the page with the highest score; ties go to the later page.
	PickBest
	// PickSpan covers every page from the first to the last accepted page.
	PickSpan
)

func (p Pick) String() string {
	switch p {
	case PickLast:
		return "last"
	case PickBest:
		return "best"
	case PickSpan:
		return "span"
	}
	return "first"
}

// Anchor is how a section finds its pages. It is one of TitleSearch,
// PositionalOffset or GapInference.
type Anchor interface {
	fmt.Stringer
	anchor()
}

// TitleSearch scans for pages carrying the section's own markers. When After
// names a section, the scan starts on the page following that section's end.
type TitleSearch struct {
	Pick  Pick
	After string
}

// PositionalOffset tries start+Offset of each anchor section in turn and keeps
// the first candidate page that passes the section's validation.
type PositionalOffset struct {
	Anchors []string
	Offset  int
}

// GapInference places a section on the near-empty pages between two others.
type GapInference struct {
	After  string
	Before string
}

func (TitleSearch) anchor()      {}
func (PositionalOffset) anchor() {}
func (GapInference) anchor()     {}

func (a TitleSearch) String() string {
	if a.After != "" {
		return fmt.Sprintf("title(%s, after %s)", a.Pick, a.After)
	}
	return fmt.Sprintf("title(%s)", a.Pick)
}

func (a PositionalOffset) String() string {
	return fmt.Sprintf("offset(%s %+d)", strings.Join(a.Anchors, " | "), a.Offset)
}

func (a GapInference) String() string {
	return fmt.Sprintf("gap(%s .. %s)", a.After, a.Before)
}

// Rule binds a section to its anchor. Rules are evaluated in order, so an
// anchor may only name sections that appear earlier.
type Rule struct {
	Section string
	Anchor  Anchor
}

// scorer reports whether a page is accepted and how strongly.
type scorer func(page int) (bool, int)

// searchTitle applies a TitleSearch over pages [from, n).
func searchTitle(pick Pick, from, n int, accept scorer) *PageRange {
	first, last, best, bestScore := -1, -1, -1, -1
	for p := max(from, 0); p < n; p++ {
		ok, score := accept(p)
		if !ok {
			continue
		}
		if first < 0 {
			first = p
			if pick == PickFirst {
				break
			}
		}
		last = p
		if score >= bestScore {
			best, bestScore = p, score
		}
	}
	if first < 0 {
		return nil
	}
	switch pick {
	case PickLast:
		return span(last, last)
	case PickBest:
		return span(best, best)
	case PickSpan:
		return span(first, last)
	}
	return span(first, first)
}

// searchOffset applies a PositionalOffset against already resolved ranges.
func searchOffset(rule PositionalOffset, resolved map[string]*PageRange, n int, accept scorer) *PageRange {
	for _, name := range rule.Anchors {
		r := resolved[name]
		if r == nil {
			continue
		}
		p := r.Start + rule.Offset
		if p < 0 || p >= n {
			continue
		}
		if ok, _ := accept(p); ok {
			return span(p, p)
		}
	}
	return nil
}

// startAfter returns the first page a search anchored after section may use.
func startAfter(section string, resolved map[string]*PageRange) int {
	if section == "" {
		return 0
	}
	if r := resolved[section]; r != nil {
		return r.End + 1
	}
	return 0
}
