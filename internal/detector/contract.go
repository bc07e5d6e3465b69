package detector

import (
	"log/slog"

	"github.com/Lllllllleong/contractsplitter/internal/corpus"
	"github.com/Lllllllleong/contractsplitter/internal/patterns"
)

// ContractDetector finds the twelve sections of an initial employment contract.
type ContractDetector struct {
	p      patterns.ContractPatterns
	logger *slog.Logger
	plan   []Rule
	order  []string
}

// NewContractDetector builds a detector over the contract catalogue.
func NewContractDetector(p patterns.ContractPatterns, logger *slog.Logger) *ContractDetector {
	if logger == nil {
		logger = slog.Default()
	}
	d := &ContractDetector{p: p, logger: logger}
	d.plan = []Rule{
		{Section: p.Contract.Name, Anchor: TitleSearch{Pick: PickFirst}},
		{Section: p.TaxRegistration.Name, Anchor: TitleSearch{Pick: PickFirst}},
		{Section: p.HazardGuide.Name, Anchor: TitleSearch{Pick: PickFirst, After: p.TaxRegistration.Name}},
		{Section: p.Beneficiary.Name, Anchor: GapInference{After: p.TaxRegistration.Name, Before: p.HazardGuide.Name}},
		{Section: p.BehaviorPolicy.Name, Anchor: TitleSearch{Pick: PickFirst}},
		{Section: p.Reimbursement.Name, Anchor: TitleSearch{Pick: PickLast}},
		{Section: p.ConductCode.Name, Anchor: TitleSearch{Pick: PickFirst}},
		{Section: p.CombinedAck.Name, Anchor: PositionalOffset{Anchors: []string{p.Reimbursement.Name, p.ConductCode.Name}, Offset: 1}},
		{Section: p.WorkRegulations.Name, Anchor: TitleSearch{Pick: PickFirst}},
		{Section: p.SafetyRegulations.Name, Anchor: TitleSearch{Pick: PickBest}},
		{Section: p.Audit.Name, Anchor: TitleSearch{Pick: PickSpan}},
		{Section: p.Chinalco.Name, Anchor: PositionalOffset{Anchors: []string{p.Audit.Name}, Offset: -1}},
	}
	d.order = []string{
		p.Contract.Name,
		p.TaxRegistration.Name,
		p.HazardGuide.Name,
		p.Beneficiary.Name,
		p.BehaviorPolicy.Name,
		p.Reimbursement.Name,
		p.ConductCode.Name,
		p.CombinedAck.Name,
		p.WorkRegulations.Name,
		p.SafetyRegulations.Name,
		p.Chinalco.Name,
		p.Audit.Name,
	}
	return d
}

func (d *ContractDetector) Family() Family { return FamilyContract }

func (d *ContractDetector) SectionNames() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Plan returns the detection rules in evaluation order.
func (d *ContractDetector) Plan() []Rule {
	out := make([]Rule, len(d.plan))
	copy(out, d.plan)
	return out
}

// OverlapPriority lists the sections whose ranges the resolver keeps disjoint,
// highest priority first.
func (d *ContractDetector) OverlapPriority() []string {
	return []string{d.p.Contract.Name, d.p.TaxRegistration.Name, d.p.HazardGuide.Name, d.p.Audit.Name}
}

// Detect runs every rule of the plan against c.
func (d *ContractDetector) Detect(c *corpus.Corpus) *Result {
	n := c.Len()
	resolved := make(map[string]*PageRange, len(d.plan))
	for _, rule := range d.plan {
		var r *PageRange
		switch a := rule.Anchor.(type) {
		case TitleSearch:
			r = d.title(c, rule.Section, a, resolved)
		case PositionalOffset:
			r = searchOffset(a, resolved, n, d.scorer(c, rule.Section))
		case GapInference:
			r = d.gap(c, a, resolved)
		}
		resolved[rule.Section] = r
		d.logger.Debug("section rule evaluated", "section", rule.Section, "anchor", rule.Anchor.String(), "range", rangeAttr(r))
	}

	res := &Result{Family: FamilyContract, TotalPages: n}
	for _, name := range d.order {
		res.Sections = append(res.Sections, Section{Name: name, Range: resolved[name]})
	}
	clipBody(res.Sections, d.p.Contract.Name)
	res.Sections = ResolveOverlaps(res.Sections, d.OverlapPriority())
	d.date(c, res)
	return res
}

// title dispatches the title searches, including the three sections whose
// boundaries need more than a plain page scan.
func (d *ContractDetector) title(c *corpus.Corpus, section string, a TitleSearch, resolved map[string]*PageRange) *PageRange {
	n := c.Len()
	switch section {
	case d.p.Contract.Name:
		r := searchTitle(a.Pick, 0, n, d.scorer(c, section))
		if r != nil {
			r.End = d.contractEnd(c, r.Start)
		}
		return r
	case d.p.TaxRegistration.Name:
		return d.taxRegistration(c)
	case d.p.HazardGuide.Name:
		r := searchTitle(a.Pick, startAfter(a.After, resolved), n, d.scorer(c, section))
		if r != nil {
			r.End = d.hazardEnd(c, r.Start)
		}
		return r
	}
	return searchTitle(a.Pick, startAfter(a.After, resolved), n, d.scorer(c, section))
}

// scorer returns the page classifier of a single-page section.
func (d *ContractDetector) scorer(c *corpus.Corpus, section string) scorer {
	var spec *patterns.SectionSpec
	switch section {
	case d.p.Contract.Name:
		spec = &d.p.Contract
	case d.p.HazardGuide.Name:
		h := d.p.HazardGuide
		return func(p int) (bool, int) {
			text := c.Text(p)
			if !h.Title.Any(text) {
				return false, 0
			}
			score := h.Validation.Count(text)
			return score >= h.MinValidation, score
		}
	case d.p.BehaviorPolicy.Name:
		spec = &d.p.BehaviorPolicy
	case d.p.Reimbursement.Name:
		spec = &d.p.Reimbursement
	case d.p.ConductCode.Name:
		spec = &d.p.ConductCode
	case d.p.CombinedAck.Name:
		spec = &d.p.CombinedAck
	case d.p.WorkRegulations.Name:
		spec = &d.p.WorkRegulations
	case d.p.SafetyRegulations.Name:
		spec = &d.p.SafetyRegulations
	case d.p.Chinalco.Name:
		spec = &d.p.Chinalco
	case d.p.Audit.Name:
		spec = &d.p.Audit
	default:
		return func(int) (bool, int) { return false, 0 }
	}
	s := *spec
	return func(p int) (bool, int) {
		text := c.Text(p)
		return s.Matches(text), s.Score(text)
	}
}

// contractEnd is the page before the first tax-registration marker after start,
// or the last page.
func (d *ContractDetector) contractEnd(c *corpus.Corpus, start int) int {
	tax := d.p.TaxRegistration
	for p := start + 1; p < c.Len(); p++ {
		text := c.Text(p)
		if tax.Primary.Any(text) || tax.Secondary.Any(text) {
			return p - 1
		}
	}
	return c.Len() - 1
}

// taxRegistration runs the two-tier search. Tier 1 looks for the certificate's
// first page; tier 2 for the continuation heading, backing up one page when the
// previous page carries a tier-1 marker.
func (d *ContractDetector) taxRegistration(c *corpus.Corpus) *PageRange {
	tax := d.p.TaxRegistration
	start := -1
	for p := 0; p < c.Len(); p++ {
		if tax.Primary.Any(c.Text(p)) {
			start = p
			break
		}
	}
	if start < 0 {
		for p := 0; p < c.Len(); p++ {
			if !tax.Secondary.Any(c.Text(p)) {
				continue
			}
			start = p
			if p > 0 && tax.Primary.Any(c.Text(p-1)) {
				start = p - 1
			}
			break
		}
	}
	if start < 0 {
		return nil
	}
	for p := start; p < c.Len(); p++ {
		if tax.Finish.Any(c.Text(p)) {
			return span(start, p)
		}
	}
	return span(start, start)
}

// hazardEnd extends the guide while following pages keep enough continuation
// markers, looking at most Window pages ahead.
func (d *ContractDetector) hazardEnd(c *corpus.Corpus, start int) int {
	h := d.p.HazardGuide
	end := start
	for p := start + 1; p <= start+h.Window && p < c.Len(); p++ {
		if h.Continuation.Count(c.Text(p)) < h.MinContinuation {
			break
		}
		end = p
	}
	return end
}

// gap infers the beneficiary certificate between two anchors. If the first gap
// page carries substantial text the section is absent. Otherwise the section
// runs while pages stay near-empty. When a bound is missing, the page just
// before Before and then the page just after After are tried on their own.
func (d *ContractDetector) gap(c *corpus.Corpus, a GapInference, resolved map[string]*PageRange) *PageRange {
	after, before := resolved[a.After], resolved[a.Before]
	blank := func(p int) bool {
		return IsNearEmptyPage(c.Raw(p), d.p.Beneficiary) && !IsExcludedContent(c.Raw(p), d.p.Beneficiary)
	}
	if after != nil && before != nil && after.End+1 <= before.Start-1 {
		first, last := after.End+1, before.Start-1
		if !blank(first) {
			return nil
		}
		end := first
		for p := first + 1; p <= last && blank(p); p++ {
			end = p
		}
		return span(first, end)
	}

	claimed := func(p int) bool {
		for _, r := range resolved {
			if r != nil && r.Contains(p) {
				return true
			}
		}
		return false
	}
	try := func(p int) *PageRange {
		if !c.Valid(p) || claimed(p) || !blank(p) {
			return nil
		}
		return span(p, p)
	}
	if before != nil {
		if p := before.Start - 1; after == nil || p > after.End {
			if r := try(p); r != nil {
				return r
			}
		}
	}
	if after != nil {
		if p := after.End + 1; before == nil || p < before.Start {
			return try(p)
		}
	}
	return nil
}

// date prefers the tax record, then the closing page of the contract body.
func (d *ContractDetector) date(c *corpus.Corpus, res *Result) {
	if tax := res.Section(d.p.TaxRegistration.Name); tax != nil && tax.Range != nil {
		if t, ok := findDateInPages(pageTexts(c, *tax.Range), d.p.TaxDates); ok {
			tax.Metadata.ExtractedDate = MonthYear(t)
			res.ContractDate, res.DateSource = tax.Metadata.ExtractedDate, DateFromTaxRecord
			return
		}
	}
	if body := res.Section(d.p.Contract.Name); body != nil && body.Range != nil {
		if t, ok := findDate(c.Text(body.Range.End), d.p.ContractDates); ok {
			body.Metadata.ExtractedDate = MonthYear(t)
			res.ContractDate, res.DateSource = body.Metadata.ExtractedDate, DateFromContract
		}
	}
}

// clipBody ends the named body section on the page before the first other
// section that starts after it. Without a tax record the body otherwise runs
// to the last page.
func clipBody(sections []Section, body string) {
	var r *PageRange
	for _, s := range sections {
		if s.Name == body {
			r = s.Range
		}
	}
	if r == nil {
		return
	}
	for _, s := range sections {
		if s.Name != body && s.Range != nil && s.Range.Start > r.Start && s.Range.Start <= r.End {
			r.End = s.Range.Start - 1
		}
	}
}

func pageTexts(c *corpus.Corpus, r PageRange) []string {
	var out []string
	for p := r.Start; p <= r.End && p < c.Len(); p++ {
		out = append(out, c.Text(p))
	}
	return out
}

func rangeAttr(r *PageRange) string {
	if r == nil {
		return "none"
	}
	return r.String()
}
