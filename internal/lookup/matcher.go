// Package lookup turns the obsolete-name table into the indexes used to detect
// and rewrite Soviet-era designations.
//
// All matching is literal substring matching over proper-noun phrases. Variants
// are always tried longest first, so a short variant never matches inside a
// longer one that the table also knows.
package lookup

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

var (
	// ErrEmptyName is returned when a mapping carries an empty name, label or path
	ErrEmptyName = errors.New("empty name in mapping table")

	// ErrDuplicateVariant is returned when a variant belongs to two mappings
	ErrDuplicateVariant = errors.New("variant listed in more than one mapping")
)

// space also covers the no-break space used between words in rendered articles
const space = `[\s\x{00A0}]`

var (
	repeatedSeparators = regexp.MustCompile(`,` + space + `*,`)
	repeatedSpace      = regexp.MustCompile(space + `{2,}`)
)

// Match is the result of a variant lookup
type Match struct {
	Variant       string
	ModernName    string
	CanonicalPath string
}

type removalPattern struct {
	withSeparator *regexp.Regexp
	standalone    *regexp.Regexp
}

// Matcher holds the derived indexes. It is immutable after Build and safe for
// concurrent use.
type Matcher struct {
	prefix string

	variantToModern  map[string]Match
	variantsByLength []string

	locatorToModern  map[string]string
	locatorsByLength []string

	removalTerms    []string
	removalPatterns []removalPattern
	removalLocators []string

	// one entry per mapping, in table order
	targets []Match
}

// Build derives the lookup indexes from the table
func Build(t Table) (*Matcher, error) {
	prefix := t.LocatorPrefix
	if prefix == "" {
		prefix = DefaultLocatorPrefix
	}

	m := &Matcher{
		prefix:          prefix,
		variantToModern: make(map[string]Match),
		locatorToModern: make(map[string]string),
	}

	for i, mapping := range t.Mappings {
		if strings.TrimSpace(mapping.ModernName) == "" || strings.TrimSpace(mapping.CanonicalPath) == "" {
			return nil, fmt.Errorf("mapping %d: %w", i, ErrEmptyName)
		}
		if len(mapping.ObsoleteNames) == 0 {
			return nil, fmt.Errorf("mapping %d (%s): no obsolete names: %w", i, mapping.ModernName, ErrEmptyName)
		}

		m.targets = append(m.targets, Match{
			Variant:       mapping.ObsoleteNames[0],
			ModernName:    mapping.ModernName,
			CanonicalPath: mapping.CanonicalPath,
		})

		for _, variant := range mapping.ObsoleteNames {
			if strings.TrimSpace(variant) == "" {
				return nil, fmt.Errorf("mapping %d (%s): %w", i, mapping.ModernName, ErrEmptyName)
			}
			if prev, exists := m.variantToModern[variant]; exists {
				return nil, fmt.Errorf("%q maps to both %s and %s: %w",
					variant, prev.ModernName, mapping.ModernName, ErrDuplicateVariant)
			}

			m.variantToModern[variant] = Match{
				Variant:       variant,
				ModernName:    mapping.ModernName,
				CanonicalPath: mapping.CanonicalPath,
			}
			m.variantsByLength = append(m.variantsByLength, variant)

			locator := Slugify(prefix, variant)
			m.locatorToModern[locator] = mapping.CanonicalPath
			m.locatorsByLength = append(m.locatorsByLength, locator)
		}
	}

	sortLongestFirst(m.variantsByLength)
	sortLongestFirst(m.locatorsByLength)

	for _, term := range t.TermsToRemove {
		if strings.TrimSpace(term) == "" {
			return nil, fmt.Errorf("removal term: %w", ErrEmptyName)
		}
		quoted := regexp.QuoteMeta(term)
		m.removalTerms = append(m.removalTerms, strings.ToLower(term))
		m.removalPatterns = append(m.removalPatterns, removalPattern{
			withSeparator: regexp.MustCompile(`(?i),` + space + `*` + quoted),
			standalone:    regexp.MustCompile(`(?i)\b` + quoted + `\b`),
		})
	}

	for _, locator := range t.LocatorsToRemove {
		if strings.TrimSpace(locator) == "" {
			return nil, fmt.Errorf("removal locator: %w", ErrEmptyName)
		}
		m.removalLocators = append(m.removalLocators, locator)
	}

	return m, nil
}

// Slugify builds the locator an article named name would have under prefix
func Slugify(prefix, name string) string {
	return prefix + strings.ReplaceAll(name, " ", LocatorSeparator)
}

func sortLongestFirst(s []string) {
	sort.SliceStable(s, func(i, j int) bool {
		return utf8.RuneCountInString(s[i]) > utf8.RuneCountInString(s[j])
	})
}

// LocatorPrefix returns the article path prefix reference links carry
func (m *Matcher) LocatorPrefix() string {
	return m.prefix
}

// MappingCount is the number of mappings the matcher was built from
func (m *Matcher) MappingCount() int {
	return len(m.targets)
}

// Targets returns one entry per mapping with its first variant, modern name
// and canonical path, in table order
func (m *Matcher) Targets() []Match {
	out := make([]Match, len(m.targets))
	copy(out, m.targets)
	return out
}

// Variants returns every obsolete name, longest first
func (m *Matcher) Variants() []string {
	out := make([]string, len(m.variantsByLength))
	copy(out, m.variantsByLength)
	return out
}

// ContainsObsoleteReference reports whether text mentions any variant
// (case-sensitive) or any removal term (case-insensitive). It is the cheap
// pre-filter run before any tree work.
func (m *Matcher) ContainsObsoleteReference(text string) bool {
	if text == "" {
		return false
	}

	for _, variant := range m.variantsByLength {
		if strings.Contains(text, variant) {
			return true
		}
	}

	lower := strings.ToLower(text)
	for _, term := range m.removalTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}

	return false
}

// FindFirstObsoleteVariant returns the first variant, in longest-first table
// order, that occurs in text. Position in text does not matter.
func (m *Matcher) FindFirstObsoleteVariant(text string) (Match, bool) {
	for _, variant := range m.variantsByLength {
		if strings.Contains(text, variant) {
			return m.variantToModern[variant], true
		}
	}
	return Match{}, false
}

// ReplaceAllVariants substitutes every variant with its modern name and then
// strips the removal terms
func (m *Matcher) ReplaceAllVariants(text string) string {
	if text == "" {
		return text
	}

	result := text
	for _, variant := range m.variantsByLength {
		if strings.Contains(result, variant) {
			result = strings.ReplaceAll(result, variant, m.variantToModern[variant].ModernName)
		}
	}

	return m.RemoveRemovalTerms(result)
}

// RemoveRemovalTerms deletes each removal term together with a preceding
// comma, or on its own at a word boundary, then tidies separators and
// whitespace
func (m *Matcher) RemoveRemovalTerms(text string) string {
	if text == "" {
		return text
	}

	result := text
	for _, p := range m.removalPatterns {
		result = p.withSeparator.ReplaceAllString(result, "")
		result = p.standalone.ReplaceAllString(result, "")
	}

	result = repeatedSeparators.ReplaceAllString(result, ",")
	result = repeatedSpace.ReplaceAllString(result, " ")
	return strings.TrimSpace(result)
}

// LocatorShouldBeRemoved reports whether a link to locator must be deleted
func (m *Matcher) LocatorShouldBeRemoved(locator string) bool {
	if locator == "" {
		return false
	}
	for _, remove := range m.removalLocators {
		if strings.Contains(locator, remove) {
			return true
		}
	}
	return false
}

// RewriteLocator replaces the longest obsolete locator found in locator with
// its modern counterpart. Unknown locators are returned unchanged.
func (m *Matcher) RewriteLocator(locator string) string {
	if locator == "" {
		return locator
	}
	for _, old := range m.locatorsByLength {
		if strings.Contains(locator, old) {
			return strings.Replace(locator, old, m.locatorToModern[old], 1)
		}
	}
	return locator
}
