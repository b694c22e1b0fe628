// Package foodterms finds food and drink vocabulary in a user query.
package foodterms

import (
	"regexp"
	"slices"
	"strings"
)

var foodPattern = regexp.MustCompile(`(?i)\b(pizza|burger|pasta|sandwich|salad|taco|sushi|wings?|fries|chicken|steak|soup|wrap|bowl|noodle|rice|curry|bbq|barbecue|seafood|shrimp|lobster|crab|fish|pork|beef|lamb|vegan|dessert|cake|cookie|pie|brownie|ice\s*cream|donut|doughnut|coffee|tea|smoothie|juice|latte|espresso|drink|beverage|breakfast|lunch|dinner|brunch|appetizer|entree|mac\s*(?:and|&|n)\s*cheese)\b`)

var spaces = regexp.MustCompile(`\s+`)

// Extract returns the distinct food terms mentioned in query, lower-cased
// with internal whitespace collapsed, in sorted order. It returns nil when
// nothing matches.
func Extract(query string) []string {
	matches := foodPattern.FindAllString(query, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		term := spaces.ReplaceAllString(strings.ToLower(m), " ")
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	slices.Sort(out)
	return out
}
