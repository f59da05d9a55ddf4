package classify

import (
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/billion-eyes/incident-pipeline/internal/models"
)

// CategoryUnknown tags a recognized term with no classification rule. It
// is a valid, if inactionable, category - not an error.
const CategoryUnknown = "Unknown"

// Rules maps resolved terms to incident categories. DaytimeGated names the
// single term that only counts as an incident during daylight hours.
type Rules struct {
	Categories   map[string]string `json:"categories"`
	DaytimeGated string            `json:"daytime_gated"`
}

// DefaultRules returns the built-in rule table. Terms match the priority
// vocabulary exactly.
func DefaultRules() Rules {
	return Rules{
		Categories: map[string]string{
			"car accident":  "Human healthcare services",
			"bus crash":     "Human healthcare services",
			"fallen_tree":   "Obstruction on Roads",
			"animal debris": "Environmental Violation",
			"pothole":       "Road Damage",
			"street light":  "Daytime Running Street Light",
			"litter":        "Environmental Violation",
		},
		DaytimeGated: "street light",
	}
}

// LoadRules reads a rules override file. An empty path or any load failure
// falls back to the built-in table.
func LoadRules(path string) Rules {
	if path == "" {
		return DefaultRules()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("rules config unavailable, using built-in rules", "path", path, "error", err)
		return DefaultRules()
	}
	var rules Rules
	if err := json.Unmarshal(data, &rules); err != nil || len(rules.Categories) == 0 {
		slog.Warn("rules config invalid, using built-in rules", "path", path, "error", err)
		return DefaultRules()
	}
	return rules
}

// Classifier maps a resolved term plus an instant to an incident category.
type Classifier struct {
	rules    Rules
	resolver *Resolver
}

func NewClassifier(rules Rules, resolver *Resolver) *Classifier {
	return &Classifier{rules: rules, resolver: resolver}
}

// Classify returns the category for a resolved term. Unrecognized terms
// classify as CategoryUnknown. The daytime-gated term returns ok=false
// outside [06:00, 18:00) local time: not an incident at all, silently
// suppressed per the rule table.
func (c *Classifier) Classify(term string, t time.Time) (string, bool) {
	category, known := c.rules.Categories[term]
	if !known {
		slog.Warn("unrecognized term", "term", term)
		return CategoryUnknown, true
	}
	if term == c.rules.DaytimeGated && !isDaytime(t) {
		slog.Debug("gated term outside daytime window, suppressed", "term", term)
		return "", false
	}
	return category, true
}

// Process runs the full pipeline: resolve (free text) or rank directly
// (term list), then classify. ok is false when nothing resolves or the
// daytime gate suppresses the result.
func (c *Classifier) Process(labels models.Labels, t time.Time) (string, bool) {
	var term string
	var ok bool
	if labels.IsList() {
		term, ok = c.resolver.HighestPriority(labels)
	} else {
		term, ok = c.resolver.Process(labels.Raw())
	}
	if !ok {
		return "", false
	}
	return c.Classify(term, t)
}

func isDaytime(t time.Time) bool {
	hour := t.Local().Hour()
	return hour >= 6 && hour < 18
}
