package diagnosis

import (
	"github.com/Lllllllleong/contractsplitter/internal/detector"
)

// Aggregator collects detection results for a batch. It is not safe for
// concurrent use; concurrent producers should each fill their own Aggregator
// (or result slot) and Merge afterwards.
type Aggregator struct {
	sections []string
	entries  Handoff
}

// NewAggregator returns an aggregator whose entries all list sectionNames, in
// that order.
func NewAggregator(sectionNames []string) *Aggregator {
	names := make([]string, len(sectionNames))
	copy(names, sectionNames)
	return &Aggregator{sections: names, entries: Handoff{}}
}

// Add records the detection result for file.
func (a *Aggregator) Add(file string, res *detector.Result) {
	e := &Entry{
		TotalPages:   res.TotalPages,
		ContractDate: NoDate,
		DateSource:   res.DateSource,
		Subtype:      res.Subtype,
		Sections:     make(Sections, 0, len(a.sections)),
	}
	if res.ContractDate != "" {
		e.ContractDate = res.ContractDate
	}
	for _, name := range a.sections {
		sr := SectionRange{Name: name}
		if r := res.Range(name); r != nil {
			start, end := r.OneBased()
			sr.Range = &Range{Start: start, End: end}
		}
		e.Sections = append(e.Sections, sr)
	}
	if e.TotalPages == 0 {
		e.TotalPages = maxEnd(e.Sections)
	}
	a.entries[file] = e
}

// AddFailure records a document whose detection aborted. Every section is
// listed as not detected so per-section statistics stay aligned.
func (a *Aggregator) AddFailure(file string, err error) {
	e := &Entry{
		ContractDate: NoDate,
		Sections:     make(Sections, 0, len(a.sections)),
		Error:        err.Error(),
	}
	for _, name := range a.sections {
		e.Sections = append(e.Sections, SectionRange{Name: name})
	}
	a.entries[file] = e
}

// Merge copies every entry of other into a. Entries of other win on conflict.
func (a *Aggregator) Merge(other *Aggregator) {
	for file, e := range other.entries {
		a.entries[file] = e
	}
}

// Len returns the number of documents recorded.
func (a *Aggregator) Len() int { return len(a.entries) }

// SectionNames returns the section order used for every entry.
func (a *Aggregator) SectionNames() []string {
	out := make([]string, len(a.sections))
	copy(out, a.sections)
	return out
}

// Handoff returns the accumulated entries.
func (a *Aggregator) Handoff() Handoff {
	out := make(Handoff, len(a.entries))
	for k, v := range a.entries {
		out[k] = v
	}
	return out
}

// Summary summarises the batch; see Summarize.
func (a *Aggregator) Summary(threshold int) Summary {
	return Summarize(a.entries, threshold)
}

func maxEnd(s Sections) int {
	m := 0
	for _, sr := range s {
		if sr.Range != nil && sr.Range.End > m {
			m = sr.Range.End
		}
	}
	return m
}
