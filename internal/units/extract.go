// Package units infers residential unit counts from permit and variance
// records. The structured unit field always wins; otherwise a prioritized
// rule chain scans the free-text description. Extraction is heuristic by
// nature, so each tier is a separate pattern and tiers are tried in order
// rather than folded into one expression.
package units

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/phlwatch/digest-cli/internal/model"
)

// numberWords maps spelled-out counts to integers. Twenty is the practical
// ceiling; larger projects always state digits.
var numberWords = map[string]int{
	"single": 1, "one": 1,
	"two": 2, "double": 2,
	"three": 3, "triple": 3,
	"four": 4, "quad": 4,
	"five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19, "twenty": 20,
}

const wordAlt = `single|one|two|double|three|triple|four|quad|five|six|seven|eight|nine|ten|` +
	`eleven|twelve|thirteen|fourteen|fifteen|sixteen|seventeen|eighteen|nineteen|twenty`

var (
	// Tier a: digits followed by a unit keyword. Two forms, matching the
	// source data: "19 unit", "(8) dwelling units", "8-family", "3 household".
	digitUnitRe   = regexp.MustCompile(`\(?(\d+)\)?[\s-]+(?:unit|dwelling)s?\b`)
	digitFamilyRe = regexp.MustCompile(`\(?(\d+)\)?[\s-]*(?:family|household)`)

	// Tier b: spelled-out number, optionally confirmed by a parenthetical
	// digit, followed by a unit keyword: "eight dwelling units",
	// "eight (8) family".
	wordUnitRe = regexp.MustCompile(`\b(` + wordAlt + `)\b(?:\s*\(\d+\))?[\s-]+(?:units?|dwellings?|family|households?)\b`)

	// Spelled-out number immediately confirmed by a parenthetical digit.
	// Used only to detect disagreement between the two.
	wordParenRe = regexp.MustCompile(`\b(` + wordAlt + `)\b\s*\((\d+)\)`)

	// Tier d: bare multi-family keyword with no count anywhere.
	multiFamilyRe = regexp.MustCompile(`multi[\s-]*family`)
)

// Extract resolves a unit count from the structured field and the free-text
// description. A parsable positive integer in the field wins outright. When
// the description mentions several independent counts, the maximum is
// returned, since the digest surfaces the largest relevant project. A
// spelled-out number that disagrees with its parenthetical digit resolves
// to the digit and sets Ambiguous so the record can be reviewed, not
// silently dropped.
//
// Pure function: no side effects, deterministic over its two inputs.
func Extract(field, description string) model.UnitCount {
	if n, ok := parseField(field); ok {
		return model.UnitCount{N: n, Source: model.UnitSourceField, Ambiguous: disagrees(description)}
	}

	text := strings.ToLower(description)
	if text == "" {
		return model.UnknownUnits()
	}
	ambiguous := disagrees(text)

	// Tier a: explicit digits are the most reliable signal.
	if n, ok := maxDigitMatch(text); ok {
		return model.UnitCount{N: n, Source: model.UnitSourceExtracted, Ambiguous: ambiguous}
	}

	// Tier b: spelled-out numbers via the fixed word table.
	if n, ok := maxWordMatch(text); ok {
		return model.UnitCount{N: n, Source: model.UnitSourceExtracted, Ambiguous: ambiguous}
	}

	// Tier d: multi-family with no stated count means at least two units;
	// guessing a number here would corrupt downstream thresholds.
	if multiFamilyRe.MatchString(text) {
		return model.MultiFamilyUnits()
	}

	return model.UnknownUnits()
}

func parseField(field string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(field))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func maxDigitMatch(text string) (int, bool) {
	best, found := 0, false
	for _, re := range []*regexp.Regexp{digitUnitRe, digitFamilyRe} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil || n <= 0 {
				continue
			}
			found = true
			if n > best {
				best = n
			}
		}
	}
	return best, found
}

func maxWordMatch(text string) (int, bool) {
	best, found := 0, false
	for _, m := range wordUnitRe.FindAllStringSubmatch(text, -1) {
		n, ok := numberWords[m[1]]
		if !ok {
			continue
		}
		found = true
		if n > best {
			best = n
		}
	}
	return best, found
}

// disagrees reports whether any spelled-out number is confirmed by a
// parenthetical digit that does not match it, e.g. "eight (9)". The digit
// is preferred on disagreement; the flag surfaces the record for manual
// review.
func disagrees(text string) bool {
	for _, m := range wordParenRe.FindAllStringSubmatch(strings.ToLower(text), -1) {
		word, ok := numberWords[m[1]]
		if !ok {
			continue
		}
		digit, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		if word != digit {
			return true
		}
	}
	return false
}
