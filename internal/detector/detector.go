// Package detector locates the sections of a paginated legal document from its
// per-page text. There is one detector per document family; both are driven
// entirely by a patterns.Library, so tuning a heuristic means editing data.
package detector

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lllllllleong/contractsplitter/internal/corpus"
	"github.com/Lllllllleong/contractsplitter/internal/patterns"
)

// Family identifies a document template.
type Family string

const (
	FamilyContract Family = "contratos"
	FamilyRenewal  Family = "renovaciones"
)

// ParseFamily accepts the Spanish folder names used by operators as well as
// their English aliases.
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "contratos", "contrato", "contract", "contracts":
		return FamilyContract, nil
	case "renovaciones", "renovacion", "renovación", "renewal", "renewals":
		return FamilyRenewal, nil
	}
	return "", fmt.Errorf("unknown document family %q", s)
}

// Date sources recorded on a Result.
const (
	DateFromTaxRecord = "sunat"
	DateFromContract  = "contrato"
	DateFromAudit     = "auditoria"
)

// Renewal subtypes.
const (
	SubtypeExtension = "prorroga"
	SubtypeNewTerm   = "renovacion"
)

// PageRange is an inclusive, 0-based page span.
type PageRange struct {
	Start int
	End   int
}

func span(start, end int) *PageRange { return &PageRange{Start: start, End: end} }

// OneBased returns the range as the 1-based page numbers shown to operators.
func (r PageRange) OneBased() (int, int) { return r.Start + 1, r.End + 1 }

// Contains reports whether page p lies inside the range.
func (r PageRange) Contains(p int) bool { return p >= r.Start && p <= r.End }

// Overlaps reports whether the two ranges share a page.
func (r PageRange) Overlaps(o PageRange) bool { return r.Start <= o.End && o.Start <= r.End }

func (r PageRange) String() string {
	s, e := r.OneBased()
	return fmt.Sprintf("%d-%d", s, e)
}

// Metadata carries per-section extras. ExtractedDate is formatted MM.YYYY.
type Metadata struct {
	ExtractedDate string
}

// Section is the detection outcome for one named section. A nil Range means
// the section was not found.
type Section struct {
	Name     string
	Range    *PageRange
	Metadata Metadata
}

// Result is the full detection outcome for one document.
type Result struct {
	Family       Family
	TotalPages   int
	ContractDate string
	DateSource   string
	Subtype      string
	Sections     []Section
}

// Section returns the named section, or nil if the family has no such section.
func (r *Result) Section(name string) *Section {
	for i := range r.Sections {
		if r.Sections[i].Name == name {
			return &r.Sections[i]
		}
	}
	return nil
}

// Range returns the named section's range, nil when absent.
func (r *Result) Range(name string) *PageRange {
	if s := r.Section(name); s != nil {
		return s.Range
	}
	return nil
}

// Detected counts sections with a range.
func (r *Result) Detected() int {
	n := 0
	for _, s := range r.Sections {
		if s.Range != nil {
			n++
		}
	}
	return n
}

// Detector classifies the pages of one document family.
type Detector interface {
	Family() Family
	// SectionNames lists every section the family reports, in output order.
	SectionNames() []string
	// Detect never fails: sections it cannot place are returned with a nil Range.
	Detect(c *corpus.Corpus) *Result
}

// Option configures a detector.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger routes per-section debug traces to l.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New returns the detector for family, configured with lib.
func New(family Family, lib *patterns.Library, opts ...Option) (Detector, error) {
	if lib == nil {
		return nil, fmt.Errorf("pattern library is required")
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	switch family {
	case FamilyContract:
		return NewContractDetector(lib.Contract, o.logger), nil
	case FamilyRenewal:
		return NewRenewalDetector(lib.Renewal, o.logger), nil
	}
	return nil, fmt.Errorf("unknown document family %q", family)
}

// SectionNames returns the output section names of family under lib.
func SectionNames(family Family, lib *patterns.Library) []string {
	d, err := New(family, lib)
	if err != nil {
		return nil
	}
	return d.SectionNames()
}
