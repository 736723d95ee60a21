// Package classify derives a datastream's klasse, klasse id and geometry
// from loosely structured upstream metadata. Classification never fails:
// every record resolves to a Result.
package classify

import (
	"strings"

	"github.com/verkehr-aachen/frost-crawler/internal/frost"
	"github.com/verkehr-aachen/frost-crawler/internal/store"
)

// KlasseWeather is assigned to weather-related datastreams.
const KlasseWeather = "Wetter"

// WeatherKeywords are matched case-insensitively against descriptions.
var WeatherKeywords = []string{
	"SIGNIFICANTWEATHER",
	"WINDDIRECTION",
	"HUMIDITY",
	"TEMPERATURE",
	"DEWPOINT",
	"WINDSPEED",
	"PROBABILITYOFPRECIPITATION",
}

// Rule is one entry of the priority-ordered klasse chain.
type Rule struct {
	Name  string
	Match func(frost.Datastream) bool
	Apply func(frost.Datastream) string
}

// Result is the outcome of classifying one datastream.
type Result struct {
	Klasse string
	// KlasseID is zero when the upstream carried none.
	KlasseID int64
	// Rule names the rule that produced Klasse.
	Rule     string
	Location *Location
	Labels   Labels
	// Confidential follows the owning Thing's species.
	Confidential bool
}

// Classifier applies its rules in order; the first match wins.
type Classifier struct {
	rules []Rule
}

// New returns a Classifier. Without rules it uses DefaultRules. A trailing
// catch-all is always appended so the chain cannot fall through.
func New(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Classifier{rules: append(rules[:len(rules):len(rules)], unknownRule())}
}

// DefaultRules is weather keyword, then properties.klasse, then
// properties.type.
func DefaultRules() []Rule {
	return []Rule{
		weatherRule(),
		propertyRule("klasse"),
		propertyRule("type"),
	}
}

// Classify resolves klasse, klasse id and geometry for ds.
func (c *Classifier) Classify(ds frost.Datastream) Result {
	res := Result{Klasse: store.KlasseUnknown, Rule: "unknown"}
	for _, rule := range c.rules {
		if !rule.Match(ds) {
			continue
		}
		if klasse := strings.TrimSpace(rule.Apply(ds)); klasse != "" {
			res.Klasse = klasse
			res.Rule = rule.Name
			break
		}
	}
	if id, ok := ds.Properties.Int("klasseId"); ok && id != 0 {
		res.KlasseID = id
	}
	if loc, ok := ResolveLocation(ds); ok {
		res.Location = &loc
	}
	res.Labels = LabelsFor(res.Klasse)
	res.Confidential = Confidential(ds.Thing)
	return res
}

// IsWeather reports whether description names a weather phenomenon.
func IsWeather(description string) bool {
	upper := strings.ToUpper(description)
	for _, kw := range WeatherKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

func weatherRule() Rule {
	return Rule{
		Name:  "weather",
		Match: func(ds frost.Datastream) bool { return IsWeather(ds.Description) },
		Apply: func(frost.Datastream) string { return KlasseWeather },
	}
}

func propertyRule(key string) Rule {
	return Rule{
		Name: key,
		Match: func(ds frost.Datastream) bool {
			_, ok := ds.Properties.String(key)
			return ok
		},
		Apply: func(ds frost.Datastream) string {
			v, _ := ds.Properties.String(key)
			return v
		},
	}
}

func unknownRule() Rule {
	return Rule{
		Name:  "unknown",
		Match: func(frost.Datastream) bool { return true },
		Apply: func(frost.Datastream) string { return store.KlasseUnknown },
	}
}
