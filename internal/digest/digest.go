// Package digest renders classified records into the subscriber-facing
// digest body, grouped by council district. Output is plain markdown (or
// the equivalent HTML) pasted into email as-is, so the text is assembled
// byte-for-byte rather than templated.
package digest

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/phlwatch/digest-cli/internal/model"
)

const permitLinkBase = "https://li.phila.gov/#details?entity=permits&eid="

// Input is everything the assembler needs for one digest body.
type Input struct {
	Permits   []model.ClassifiedRecord
	Variances []model.ClassifiedRecord
	Start     time.Time
	End       time.Time
	MinUnits  int
	AreaName  string   // "Citywide", a neighborhood, or "Council District N"
	Warnings  []string // data freshness warnings, shown before the summary
}

// FilterMinUnits returns the permits meeting the unit threshold. Records
// with an unknown count never satisfy the threshold, but known
// multi-family records with an unresolved count are kept: they are likely
// significant, and dropping them would hide exactly the projects the
// digest exists to surface.
func FilterMinUnits(records []model.ClassifiedRecord, minUnits int) []model.ClassifiedRecord {
	if minUnits <= 1 {
		out := make([]model.ClassifiedRecord, len(records))
		copy(out, records)
		return out
	}
	var out []model.ClassifiedRecord
	for _, r := range records {
		if r.Units.AtLeast(minUnits) || r.Units.MultiFamily() {
			out = append(out, r)
		}
	}
	return out
}

// Markdown renders the digest as markdown.
func Markdown(in Input) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# PHILADELPHIA DEVELOPMENT DIGEST\n")
	if in.AreaName != "" {
		fmt.Fprintf(&b, "## %s\n", in.AreaName)
	}
	fmt.Fprintf(&b, "%s\n\n", dateRange(in.Start, in.End))

	if len(in.Warnings) > 0 {
		b.WriteString("## DATA STATUS\n")
		for _, w := range in.Warnings {
			fmt.Fprintf(&b, "%s\n", w)
		}
		b.WriteString("\n")
	}

	b.WriteString("## SUMMARY\n")
	fmt.Fprintf(&b, "- %d new by-right housing permits (%d+ units)\n", len(in.Permits), max(in.MinUnits, 1))
	fmt.Fprintf(&b, "- %d zoning variance applications filed\n\n", len(in.Variances))

	if largest, ok := largestProject(in.Permits, in.Variances); ok {
		fmt.Fprintf(&b, "**Largest project:** %d-unit %s at %s (District %s)\n\n",
			largest.Units.N, projectKind(largest), largest.Address, largest.District)
	}

	b.WriteString("## BY-RIGHT HOUSING PERMITS\n\n")
	if len(in.Permits) > 0 {
		writeGrouped(&b, in.Permits, formatPermitMarkdown)
	} else {
		fmt.Fprintf(&b, "No permits with %d+ units found in this period.\n\n", max(in.MinUnits, 1))
	}

	b.WriteString("## ZONING VARIANCE APPLICATIONS\n\n")
	if len(in.Variances) > 0 {
		writeGrouped(&b, in.Variances, formatVarianceMarkdown)
	} else {
		b.WriteString("No zoning variance applications found in this period.\n\n")
	}

	b.WriteString("---\n")
	b.WriteString("*Data source: City of Philadelphia L&I Open Data via ArcGIS*\n")
	return b.String()
}

// HTML renders the digest as HTML for pasting into email editors.
func HTML(in Input) string {
	var b strings.Builder

	b.WriteString("<h1>PHILADELPHIA DEVELOPMENT DIGEST</h1>\n")
	if in.AreaName != "" {
		fmt.Fprintf(&b, "<h2>%s</h2>\n", in.AreaName)
	}
	fmt.Fprintf(&b, "<p>%s</p>\n", dateRange(in.Start, in.End))

	if len(in.Warnings) > 0 {
		b.WriteString("<h2>DATA STATUS</h2>\n")
		for _, w := range in.Warnings {
			fmt.Fprintf(&b, "<p>%s</p>\n", w)
		}
	}

	b.WriteString("<h2>SUMMARY</h2>\n<ul>\n")
	fmt.Fprintf(&b, "<li>%d new by-right housing permits (%d+ units)</li>\n", len(in.Permits), max(in.MinUnits, 1))
	fmt.Fprintf(&b, "<li>%d zoning variance applications filed</li>\n</ul>\n", len(in.Variances))

	if largest, ok := largestProject(in.Permits, in.Variances); ok {
		fmt.Fprintf(&b, "<p><strong>Largest project:</strong> %d-unit %s at %s (District %s)</p>\n",
			largest.Units.N, projectKind(largest), largest.Address, largest.District)
	}

	b.WriteString("<h2>BY-RIGHT HOUSING PERMITS</h2>\n")
	if len(in.Permits) > 0 {
		writeGroupedHTML(&b, in.Permits, formatPermitHTML)
	} else {
		fmt.Fprintf(&b, "<p>No permits with %d+ units found in this period.</p>\n", max(in.MinUnits, 1))
	}

	b.WriteString("<h2>ZONING VARIANCE APPLICATIONS</h2>\n")
	if len(in.Variances) > 0 {
		writeGroupedHTML(&b, in.Variances, formatVarianceHTML)
	} else {
		b.WriteString("<p>No zoning variance applications found in this period.</p>\n")
	}

	b.WriteString("<hr>\n<p><em>Data source: City of Philadelphia L&I Open Data via ArcGIS</em></p>\n")
	return b.String()
}

// GroupByDistrict buckets records by council district, preserving record
// order within each bucket. Every record lands in a bucket because
// District is never empty.
func GroupByDistrict(records []model.ClassifiedRecord) map[string][]model.ClassifiedRecord {
	grouped := make(map[string][]model.ClassifiedRecord)
	for _, r := range records {
		grouped[r.District] = append(grouped[r.District], r)
	}
	return grouped
}

// SortedDistricts orders district keys numerically, with non-numeric
// buckets (Unknown) last.
func SortedDistricts(grouped map[string][]model.ClassifiedRecord) []string {
	keys := make([]string, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return districtRank(keys[i]) < districtRank(keys[j])
	})
	return keys
}

func districtRank(district string) int {
	if n, err := strconv.Atoi(district); err == nil {
		return n
	}
	return 999
}

func writeGrouped(b *strings.Builder, records []model.ClassifiedRecord, format func(model.ClassifiedRecord) string) {
	grouped := GroupByDistrict(records)
	for _, district := range SortedDistricts(grouped) {
		fmt.Fprintf(b, "### COUNCIL DISTRICT %s\n\n", district)
		for _, r := range grouped[district] {
			b.WriteString(format(r))
			b.WriteString("\n")
		}
	}
}

func writeGroupedHTML(b *strings.Builder, records []model.ClassifiedRecord, format func(model.ClassifiedRecord) string) {
	grouped := GroupByDistrict(records)
	for _, district := range SortedDistricts(grouped) {
		fmt.Fprintf(b, "<h3>COUNCIL DISTRICT %s</h3>\n<ul>\n", district)
		for _, r := range grouped[district] {
			b.WriteString(format(r))
		}
		b.WriteString("</ul>\n")
	}
}

func formatPermitMarkdown(r model.ClassifiedRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- **%s** | Units: %s | Developer: %s\n", orNA(r.Address), r.Units, orNA(r.Developer))
	if r.Neighborhood != "" {
		fmt.Fprintf(&b, "  - Neighborhood: %s\n", r.Neighborhood)
	}
	fmt.Fprintf(&b, "  - [View permit details](%s%s)\n", permitLinkBase, r.ID)
	return b.String()
}

func formatPermitHTML(r model.ClassifiedRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<li><strong>%s | Units: %s | Developer: %s</strong>\n<ul>\n",
		orNA(r.Address), r.Units, orNA(r.Developer))
	if r.Neighborhood != "" {
		fmt.Fprintf(&b, "<li>Neighborhood: %s</li>\n", r.Neighborhood)
	}
	fmt.Fprintf(&b, "<li><a href=\"%s%s\">View permit details</a></li>\n</ul>\n</li>\n", permitLinkBase, r.ID)
	return b.String()
}

func formatVarianceMarkdown(r model.ClassifiedRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- **%s%s**\n", orNA(r.Address), varianceUnitsSuffix(r))
	fmt.Fprintf(&b, "  - Appeal: %s | Appellant: %s\n", orNA(r.ID), orNA(r.Developer))
	fmt.Fprintf(&b, "  - Requested variance: %s\n", varianceDescription(r))
	return b.String()
}

func formatVarianceHTML(r model.ClassifiedRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<li><strong>%s%s</strong>\n<ul>\n", orNA(r.Address), varianceUnitsSuffix(r))
	fmt.Fprintf(&b, "<li>Appeal: %s | Appellant: %s</li>\n", orNA(r.ID), orNA(r.Developer))
	fmt.Fprintf(&b, "<li>Requested variance: %s</li>\n</ul>\n</li>\n", varianceDescription(r))
	return b.String()
}

// varianceUnitsSuffix highlights the unit count for larger variance
// projects only; small counts add noise to the headline line.
func varianceUnitsSuffix(r model.ClassifiedRecord) string {
	if r.Units.AtLeast(5) {
		return fmt.Sprintf(" | %d units", r.Units.N)
	}
	return ""
}

func varianceDescription(r model.ClassifiedRecord) string {
	desc := strings.TrimSpace(strings.NewReplacer("\n", " ", "\r", " ").Replace(r.Description))
	if desc == "" {
		return "Variance details not available"
	}
	return desc
}

// largestProject finds the biggest known-count project across both record
// sets. Unknown counts are skipped, never guessed.
func largestProject(permits, variances []model.ClassifiedRecord) (model.ClassifiedRecord, bool) {
	var best model.ClassifiedRecord
	found := false
	for _, r := range permits {
		if r.Units.Known() && (!found || r.Units.N > best.Units.N) {
			best, found = r, true
		}
	}
	for _, r := range variances {
		if r.Units.Known() && (!found || r.Units.N > best.Units.N) {
			best, found = r, true
		}
	}
	return best, found
}

func projectKind(r model.ClassifiedRecord) string {
	if r.Type == model.RecordTypeVariance {
		return "variance application"
	}
	return "by-right permit"
}

func dateRange(start, end time.Time) string {
	if start.IsZero() && end.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s - %s", start.Format("January 02"), end.Format("January 02, 2006"))
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
