package extract

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/Lllllllleong/contractsplitter/internal/detector"
)

// UnknownWorker names a renewal whose file name carries no worker segment.
const UnknownWorker = "Desconocido"

const maxNameRunes = 200

var invalidNameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// SanitizeName drops characters Windows rejects in file names and caps the
// result at 200 runes.
func SanitizeName(name string) string {
	name = norm.NFC.String(name)
	name = invalidNameChars.ReplaceAllString(name, "")
	if utf8.RuneCountInString(name) > maxNameRunes {
		name = string([]rune(name)[:maxNameRunes])
	}
	return strings.TrimSpace(name)
}

// SectionFileName builds "{section}-{date}-{worker}.{ext}".
func SectionFileName(section, date, worker, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	return SanitizeName(fmt.Sprintf("%s-%s-%s.%s", section, date, worker, ext))
}

var workerSegment = regexp.MustCompile(`-\s*(.*?)\s*(?:\(|-|$)`)

// WorkerName derives the worker's display name from a source file name.
// Contract files are named after the worker already; renewal files carry the
// worker between the first dash and the next dash or parenthesis, as in
// "Renovacion de Contrato - Anthony Arenas (2).pdf".
func WorkerName(family detector.Family, filename string) string {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	stem = norm.NFC.String(stem)
	if family != detector.FamilyRenewal {
		return stem
	}
	m := workerSegment.FindStringSubmatch(stem)
	if m == nil {
		return UnknownWorker
	}
	lettersOnly := transform.Chain(norm.NFC, runes.Remove(runes.Predicate(func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsSpace(r)
	})))
	name, _, err := transform.String(lettersOnly, m[1])
	if err != nil {
		return UnknownWorker
	}
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return UnknownWorker
	}
	return name
}

// UniqueDir creates and returns base/name, or base/"name (2)", base/"name (3)"...
// when earlier candidates already exist.
func UniqueDir(base, name string) (string, error) {
	name = SanitizeName(name)
	if name == "" {
		name = UnknownWorker
	}
	candidate := filepath.Join(base, name)
	for n := 2; ; n++ {
		err := os.Mkdir(candidate, 0o755)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("failed to create output folder: %w", err)
		}
		candidate = filepath.Join(base, fmt.Sprintf("%s (%d)", name, n))
	}
}
