// Package patterns holds the versioned catalogue of phrases, expressions and
// thresholds the section detectors classify pages with. A Library is pure data:
// it is decoded once from YAML and never mutated afterwards, so the same value
// can be shared by every detector in a batch.
package patterns

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultDocument []byte

// Mode tells a SectionSpec how its patterns classify a page.
type Mode string

const (
	// ModeSingle matches when the first pattern matches.
	ModeSingle Mode = "single"
	// ModeAny matches when any pattern matches.
	ModeAny Mode = "any"
	// ModeThreshold matches when at least Threshold patterns match.
	ModeThreshold Mode = "threshold"
)

// SectionSpec is the static descriptor of one section.
type SectionSpec struct {
	Name      string `yaml:"name"`
	Mode      Mode   `yaml:"mode"`
	Patterns  Set    `yaml:"patterns"`
	Confirm   Set    `yaml:"confirm,omitempty"`
	Threshold int    `yaml:"threshold,omitempty"`
}

// Score returns the number of patterns matching text.
func (s SectionSpec) Score(text string) int {
	return s.Patterns.Count(text)
}

// Matches classifies text according to the section's mode. When Confirm is set,
// at least one of its patterns must also be present.
func (s SectionSpec) Matches(text string) bool {
	var ok bool
	switch s.Mode {
	case ModeSingle:
		ok = len(s.Patterns) > 0 && s.Patterns[0].Match(text)
	case ModeThreshold:
		ok = s.Patterns.Count(text) >= s.Threshold
	default:
		ok = s.Patterns.Any(text)
	}
	if ok && len(s.Confirm) > 0 {
		ok = s.Confirm.Any(text)
	}
	return ok
}

func (s SectionSpec) validate(key string) error {
	if s.Name == "" {
		return fmt.Errorf("%s: name is required", key)
	}
	if len(s.Patterns) == 0 {
		return fmt.Errorf("%s: at least one pattern is required", key)
	}
	switch s.Mode {
	case ModeSingle, ModeAny:
	case ModeThreshold:
		if s.Threshold < 1 || s.Threshold > len(s.Patterns) {
			return fmt.Errorf("%s: threshold %d outside 1..%d", key, s.Threshold, len(s.Patterns))
		}
	default:
		return fmt.Errorf("%s: unknown mode %q", key, s.Mode)
	}
	return nil
}

// TaxRegistrationSpec drives the two-tier search for the tax registration certificate.
type TaxRegistrationSpec struct {
	Name      string `yaml:"name"`
	Primary   Set    `yaml:"primary"`
	Secondary Set    `yaml:"secondary"`
	Finish    Set    `yaml:"finish"`
}

// HazardGuideSpec drives title-plus-validation detection and forward extension.
type HazardGuideSpec struct {
	Name            string `yaml:"name"`
	Title           Set    `yaml:"title"`
	Validation      Set    `yaml:"validation"`
	MinValidation   int    `yaml:"min_validation"`
	Continuation    Set    `yaml:"continuation"`
	MinContinuation int    `yaml:"min_continuation"`
	Window          int    `yaml:"window"`
}

// BeneficiarySpec drives gap inference for the dependent-beneficiary certificate.
type BeneficiarySpec struct {
	Name      string `yaml:"name"`
	MaxChars  int    `yaml:"max_chars"`
	Signature Set    `yaml:"signature"`
	Excluded  Set    `yaml:"excluded"`
}

// ContractPatterns is the catalogue for the initial contract family.
type ContractPatterns struct {
	Contract          SectionSpec         `yaml:"contract"`
	TaxRegistration   TaxRegistrationSpec `yaml:"tax_registration"`
	HazardGuide       HazardGuideSpec     `yaml:"hazard_guide"`
	Beneficiary       BeneficiarySpec     `yaml:"beneficiary"`
	BehaviorPolicy    SectionSpec         `yaml:"behavior_policy"`
	Reimbursement     SectionSpec         `yaml:"reimbursement"`
	ConductCode       SectionSpec         `yaml:"conduct_code"`
	CombinedAck       SectionSpec         `yaml:"combined_ack"`
	WorkRegulations   SectionSpec         `yaml:"work_regulations"`
	SafetyRegulations SectionSpec         `yaml:"safety_regulations"`
	Chinalco          SectionSpec         `yaml:"chinalco"`
	Audit             SectionSpec         `yaml:"audit"`
	TaxDates          []Regex             `yaml:"tax_dates"`
	ContractDates     []Regex             `yaml:"contract_dates"`
}

// RenewalContractSpec classifies the renewal body and finds where it ends.
type RenewalContractSpec struct {
	Name              string `yaml:"name"`
	ExtensionKeywords Set    `yaml:"extension_keywords"`
	NewTermKeywords   Set    `yaml:"new_term_keywords"`
	SignatureBlock    Set    `yaml:"signature_block"`
}

// RenewalHazardSpec is the simplified hazard-guide detection of renewals.
type RenewalHazardSpec struct {
	Name          string `yaml:"name"`
	Title         Set    `yaml:"title"`
	Validation    Set    `yaml:"validation"`
	MinValidation int    `yaml:"min_validation"`
	Table         Set    `yaml:"table"`
	Pagination    Regex  `yaml:"pagination"`
	Window        int    `yaml:"window"`
}

// RenewalAuditSpec matches the audit report and its embedded creation date.
type RenewalAuditSpec struct {
	Name         string `yaml:"name"`
	Patterns     Set    `yaml:"patterns"`
	CreationDate Regex  `yaml:"creation_date"`
}

// RenewalPatterns is the catalogue for the renewal family.
type RenewalPatterns struct {
	Contract         RenewalContractSpec `yaml:"contract"`
	HazardGuide      RenewalHazardSpec   `yaml:"hazard_guide"`
	Audit            RenewalAuditSpec    `yaml:"audit"`
	ClauseHeading    Regex               `yaml:"clause_heading"`
	BackgroundClause Regex               `yaml:"background_clause"`
	ExtensionDates   []Regex             `yaml:"extension_dates"`
	NewTermClause    Regex               `yaml:"new_term_clause"`
	NewTermDates     []Regex             `yaml:"new_term_dates"`
}

// Library is the complete, versioned pattern catalogue.
type Library struct {
	Version  string           `yaml:"version"`
	Contract ContractPatterns `yaml:"contract"`
	Renewal  RenewalPatterns  `yaml:"renewal"`
}

// Default returns the embedded catalogue.
func Default() (*Library, error) {
	return Parse(defaultDocument)
}

// MustDefault is like Default but panics if the embedded catalogue is invalid.
func MustDefault() *Library {
	lib, err := Default()
	if err != nil {
		panic(fmt.Sprintf("embedded pattern library is invalid: %v", err))
	}
	return lib
}

// Parse decodes a complete library document.
func Parse(data []byte) (*Library, error) {
	var lib Library
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return nil, fmt.Errorf("failed to decode pattern library: %w", err)
	}
	if err := lib.Validate(); err != nil {
		return nil, err
	}
	return &lib, nil
}

// Override decodes data over a fresh copy of the default library. Keys that are
// absent keep their default value; sequences given in data replace the default
// sequence entirely.
func Override(data []byte) (*Library, error) {
	lib, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, lib); err != nil {
		return nil, fmt.Errorf("failed to decode pattern override: %w", err)
	}
	if err := lib.Validate(); err != nil {
		return nil, err
	}
	return lib, nil
}

// Load reads an override file. An empty path yields the default library.
func Load(path string) (*Library, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern file %s: %w", path, err)
	}
	lib, err := Override(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lib, nil
}

// Validate checks the properties the detectors rely on.
func (l *Library) Validate() error {
	c := l.Contract
	specs := map[string]SectionSpec{
		"contract.contract":           c.Contract,
		"contract.behavior_policy":    c.BehaviorPolicy,
		"contract.reimbursement":      c.Reimbursement,
		"contract.conduct_code":       c.ConductCode,
		"contract.combined_ack":       c.CombinedAck,
		"contract.work_regulations":   c.WorkRegulations,
		"contract.safety_regulations": c.SafetyRegulations,
		"contract.chinalco":           c.Chinalco,
		"contract.audit":              c.Audit,
	}
	for key, spec := range specs {
		if err := spec.validate(key); err != nil {
			return err
		}
	}
	if c.TaxRegistration.Name == "" || len(c.TaxRegistration.Primary) == 0 {
		return fmt.Errorf("contract.tax_registration: name and primary patterns are required")
	}
	h := c.HazardGuide
	if h.Name == "" || len(h.Title) == 0 {
		return fmt.Errorf("contract.hazard_guide: name and title patterns are required")
	}
	if h.MinValidation < 1 || h.MinContinuation < 1 || h.Window < 0 {
		return fmt.Errorf("contract.hazard_guide: thresholds must be positive")
	}
	if c.Beneficiary.Name == "" || c.Beneficiary.MaxChars < 1 {
		return fmt.Errorf("contract.beneficiary: name and max_chars are required")
	}
	for _, re := range append(append([]Regex{}, c.TaxDates...), c.ContractDates...) {
		if err := checkDateGroups(re); err != nil {
			return fmt.Errorf("contract dates: %w", err)
		}
	}

	r := l.Renewal
	if r.Contract.Name == "" || r.HazardGuide.Name == "" || r.Audit.Name == "" {
		return fmt.Errorf("renewal: every section needs a name")
	}
	if len(r.Audit.Patterns) == 0 || (len(r.HazardGuide.Title) == 0 && len(r.HazardGuide.Table) == 0) {
		return fmt.Errorf("renewal: hazard guide and audit need patterns")
	}
	if r.HazardGuide.Pagination.Valid() {
		names := r.HazardGuide.Pagination.SubexpNames()
		if !hasGroup(names, "page") || !hasGroup(names, "of") {
			return fmt.Errorf("renewal.hazard_guide.pagination: groups page and of are required")
		}
	}
	dates := append(append([]Regex{}, r.ExtensionDates...), r.NewTermDates...)
	if r.Audit.CreationDate.Valid() {
		dates = append(dates, r.Audit.CreationDate)
	}
	for _, re := range dates {
		if err := checkDateGroups(re); err != nil {
			return fmt.Errorf("renewal dates: %w", err)
		}
	}
	return nil
}

func checkDateGroups(re Regex) error {
	if !re.Valid() {
		return fmt.Errorf("empty date expression")
	}
	names := re.SubexpNames()
	for _, g := range []string{"day", "month", "year"} {
		if !hasGroup(names, g) {
			return fmt.Errorf("expression %q lacks group %q", re.source, g)
		}
	}
	return nil
}

func hasGroup(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}
