package detector

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/contractsplitter/internal/corpus"
	"github.com/Lllllllleong/contractsplitter/internal/patterns"
)

// RenewalDetector finds the three sections of a contract renewal.
type RenewalDetector struct {
	p      patterns.RenewalPatterns
	logger *slog.Logger
}

// NewRenewalDetector builds a detector over the renewal catalogue.
func NewRenewalDetector(p patterns.RenewalPatterns, logger *slog.Logger) *RenewalDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &RenewalDetector{p: p, logger: logger}
}

func (d *RenewalDetector) Family() Family { return FamilyRenewal }

func (d *RenewalDetector) SectionNames() []string {
	return []string{d.p.Contract.Name, d.p.HazardGuide.Name, d.p.Audit.Name}
}

// OverlapPriority is contract, then hazard guide, then audit.
func (d *RenewalDetector) OverlapPriority() []string { return d.SectionNames() }

// Detect classifies c. The renewal body always starts on the first page.
func (d *RenewalDetector) Detect(c *corpus.Corpus) *Result {
	res := &Result{Family: FamilyRenewal, TotalPages: c.Len()}
	for _, name := range d.SectionNames() {
		res.Sections = append(res.Sections, Section{Name: name})
	}
	if c.Len() == 0 {
		return res
	}

	res.Subtype = d.subtype(c.Text(0))
	contract := span(0, d.contractEnd(c))
	audit := searchTitle(PickSpan, 0, c.Len(), func(p int) (bool, int) {
		return d.p.Audit.Patterns.Any(c.Text(p)), 0
	})
	hazard := d.hazard(c, audit)

	res.Section(d.p.Contract.Name).Range = contract
	res.Section(d.p.HazardGuide.Name).Range = hazard
	auditSection := res.Section(d.p.Audit.Name)
	auditSection.Range = audit
	if audit != nil {
		if t, ok := findDateInPages(pageTexts(c, *audit), []patterns.Regex{d.p.Audit.CreationDate}); ok {
			auditSection.Metadata.ExtractedDate = MonthYear(t)
		}
	}
	d.logger.Debug("renewal sections detected",
		"subtype", res.Subtype,
		"contract", rangeAttr(contract),
		"hazard", rangeAttr(hazard),
		"audit", rangeAttr(audit))

	res.Sections = ResolveOverlaps(res.Sections, d.OverlapPriority())

	if t, ok := d.clauseDate(c, res.Subtype); ok {
		res.ContractDate, res.DateSource = MonthYear(t), DateFromContract
		res.Section(d.p.Contract.Name).Metadata.ExtractedDate = res.ContractDate
	} else if created := res.Section(d.p.Audit.Name).Metadata.ExtractedDate; created != "" {
		res.ContractDate, res.DateSource = created, DateFromAudit
	}
	return res
}

// subtype reads the opening page. Only an unambiguous extension keyword makes
// the document an extension; anything else is treated as a new term.
func (d *RenewalDetector) subtype(first string) string {
	ext := d.p.Contract.ExtensionKeywords.Any(first)
	renew := d.p.Contract.NewTermKeywords.Any(first)
	if ext && !renew {
		return SubtypeExtension
	}
	return SubtypeNewTerm
}

// contractEnd walks the fallback chain: signature block, hazard guide title,
// hazard table, audit report, last page.
func (d *RenewalDetector) contractEnd(c *corpus.Corpus) int {
	if p := firstPage(c, 0, d.p.Contract.SignatureBlock); p >= 0 {
		return p
	}
	for _, set := range []patterns.Set{d.p.HazardGuide.Title, d.p.HazardGuide.Table, d.p.Audit.Patterns} {
		if p := firstPage(c, 1, set); p >= 0 {
			return p - 1
		}
	}
	return c.Len() - 1
}

// hazard accepts a page with the title and enough validation markers, or with
// the guide's table header. The guide's own "Página X de Y" footer marks its
// last page; without one the guide stops before the audit report.
func (d *RenewalDetector) hazard(c *corpus.Corpus, audit *PageRange) *PageRange {
	h := d.p.HazardGuide
	start := -1
	for p := 0; p < c.Len(); p++ {
		text := c.Text(p)
		titled := h.Title.Any(text) && h.Validation.Count(text) >= h.MinValidation
		if titled || h.Table.Any(text) {
			start = p
			break
		}
	}
	if start < 0 {
		return nil
	}
	if end, ok := d.paginationEnd(c, start); ok {
		return span(start, end)
	}
	if audit != nil && audit.Start-1 > start {
		return span(start, audit.Start-1)
	}
	return span(start, start)
}

func (d *RenewalDetector) paginationEnd(c *corpus.Corpus, start int) (int, bool) {
	re := d.p.HazardGuide.Pagination
	if !re.Valid() {
		return 0, false
	}
	pi, oi := re.SubexpIndex("page"), re.SubexpIndex("of")
	if pi < 0 || oi < 0 {
		return 0, false
	}
	for p := start; p <= start+d.p.HazardGuide.Window && p < c.Len(); p++ {
		for _, m := range re.FindAllStringSubmatch(c.Text(p), -1) {
			page, err1 := strconv.Atoi(m[pi])
			of, err2 := strconv.Atoi(m[oi])
			if err1 == nil && err2 == nil && of > 0 && page == of {
				return p, true
			}
		}
	}
	return 0, false
}

// clauseDate extracts the renewal start date. Extensions read the end of the
// prior term from the background clause and add one day; new terms read the
// start date from their own clause as written. Both fall back to a search of
// the whole document.
func (d *RenewalDetector) clauseDate(c *corpus.Corpus, subtype string) (time.Time, bool) {
	all := make([]string, c.Len())
	for i := range all {
		all[i] = c.Text(i)
	}
	doc := strings.Join(all, " ")

	heading, exprs, shift := d.p.NewTermClause, d.p.NewTermDates, 0
	if subtype == SubtypeExtension {
		heading, exprs, shift = d.p.BackgroundClause, d.p.ExtensionDates, 1
	}
	t, ok := time.Time{}, false
	if clause, found := clauseText(doc, heading, d.p.ClauseHeading); found {
		t, ok = findDate(clause, exprs)
	}
	if !ok {
		t, ok = findDate(doc, exprs)
	}
	if !ok {
		return time.Time{}, false
	}
	return t.AddDate(0, 0, shift), true
}

func firstPage(c *corpus.Corpus, from int, set patterns.Set) int {
	if len(set) == 0 {
		return -1
	}
	for p := from; p < c.Len(); p++ {
		if set.Any(c.Text(p)) {
			return p
		}
	}
	return -1
}
