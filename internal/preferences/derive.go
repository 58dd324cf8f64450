package preferences

import (
	"sort"
	"strings"
)

// freeTextKey is the intake answer carrying unstructured constraints
// ("no pork", "allergic to peanuts", ...).
const freeTextKey = "other_notes"

// proteinCategories are the intake categories whose selections count as
// preferred protein sources.
var proteinCategories = map[string]bool{
	"meat":      true,
	"fish":      true,
	"shellfish": true,
}

// catalog lists every item the intake form can offer, per category key.
// Exclusions are computed against this set, so items the customer never saw
// are never excluded by accident.
var catalog = map[string][]string{
	"meat":       {"bacon", "beef", "chicken", "lamb", "pork", "turkey"},
	"fish":       {"cod", "mackerel", "salmon", "sardines", "tuna"},
	"shellfish":  {"crab", "lobster", "mussels", "shrimp"},
	"vegetables": {"asparagus", "avocado", "broccoli", "cauliflower", "mushrooms", "spinach", "zucchini"},
	"dairy":      {"butter", "cheese", "cream", "greek_yogurt"},
	"nuts_seeds": {"almonds", "chia_seeds", "macadamia", "pecans", "walnuts"},
	"eggs":       {"eggs"},
}

// Summary is the derived preference structure handed to the generator.
type Summary struct {
	Excluded            []string `json:"excluded"`
	PreferredProteins   []string `json:"preferred_proteins"`
	FreeTextConstraints string   `json:"free_text_constraints"`
}

// Derive maps raw intake answers to a preference summary. Pure and
// deterministic: outputs are sorted and independent of map iteration order.
// Unknown answer keys and unknown items are ignored.
func Derive(answers map[string][]string) Summary {
	selected := map[string]bool{}
	proteins := map[string]bool{}

	for category, items := range answers {
		if category == freeTextKey {
			continue
		}
		known, ok := catalog[category]
		if !ok {
			continue
		}
		knownSet := map[string]bool{}
		for _, item := range known {
			knownSet[item] = true
		}
		for _, item := range items {
			item = strings.ToLower(strings.TrimSpace(item))
			if !knownSet[item] {
				continue
			}
			selected[item] = true
			if proteinCategories[category] {
				proteins[item] = true
			}
		}
	}

	excluded := []string{}
	for _, items := range catalog {
		for _, item := range items {
			if !selected[item] {
				excluded = append(excluded, item)
			}
		}
	}
	sort.Strings(excluded)

	preferred := make([]string, 0, len(proteins))
	for item := range proteins {
		preferred = append(preferred, item)
	}
	sort.Strings(preferred)

	return Summary{
		Excluded:            excluded,
		PreferredProteins:   preferred,
		FreeTextConstraints: freeText(answers),
	}
}

func freeText(answers map[string][]string) string {
	parts := answers[freeTextKey]
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return strings.Join(cleaned, " ")
}

// CatalogSize reports the total number of known items, used by coverage
// checks in tests.
func CatalogSize() int {
	total := 0
	for _, items := range catalog {
		total += len(items)
	}
	return total
}
