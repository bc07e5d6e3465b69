package diagnosis

import (
	"sort"

	"github.com/Lllllllleong/contractsplitter/internal/detector"
)

// DefaultThreshold is the minimum number of detected sections below which a
// document is flagged as incomplete.
func DefaultThreshold(f detector.Family) int {
	if f == detector.FamilyRenewal {
		return 3
	}
	return 10
}

// SectionStats counts one section across the batch.
type SectionStats struct {
	Name     string
	Detected int
	Missing  int
}

// Rate is the detected share in [0,1].
func (s SectionStats) Rate() float64 {
	total := s.Detected + s.Missing
	if total == 0 {
		return 0
	}
	return float64(s.Detected) / float64(total)
}

// FileCoverage is the number of sections detected in one file.
type FileCoverage struct {
	File     string
	Detected int
	Expected int
}

// Summary is the operator-facing triage view of a hand-off.
type Summary struct {
	Files              int
	TotalPages         int
	Detected           int
	Missing            int
	Sections           []SectionStats
	Incomplete         []FileCoverage
	Undated            []string
	Failed             []string
	DatesFromTaxRecord int
	Threshold          int
}

// Summarize computes batch statistics. Failed documents are listed but do not
// count towards section statistics, incompleteness or missing dates.
func Summarize(h Handoff, threshold int) Summary {
	s := Summary{Files: len(h), Threshold: threshold}
	files := make([]string, 0, len(h))
	for f := range h {
		files = append(files, f)
	}
	sort.Strings(files)

	index := map[string]int{}
	for _, file := range files {
		e := h[file]
		if e.Failed() {
			s.Failed = append(s.Failed, file)
			continue
		}
		s.TotalPages += e.TotalPages
		if e.DateSource == detector.DateFromTaxRecord && e.Dated() {
			s.DatesFromTaxRecord++
		}
		if !e.Dated() {
			s.Undated = append(s.Undated, file)
		}
		detected := 0
		for _, sr := range e.Sections {
			i, ok := index[sr.Name]
			if !ok {
				i = len(s.Sections)
				index[sr.Name] = i
				s.Sections = append(s.Sections, SectionStats{Name: sr.Name})
			}
			if sr.Range != nil {
				detected++
				s.Detected++
				s.Sections[i].Detected++
			} else {
				s.Missing++
				s.Sections[i].Missing++
			}
		}
		if detected < threshold {
			s.Incomplete = append(s.Incomplete, FileCoverage{File: file, Detected: detected, Expected: len(e.Sections)})
		}
	}
	return s
}
