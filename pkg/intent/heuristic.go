package intent

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/manideep395/QueryPilot-AI/pkg/models"
)

// HeuristicProvider extracts intents with keyword and pattern rules grounded
// on the live schema. It is deterministic and always available, serving as
// the fallback when no model is configured or reachable.
type HeuristicProvider struct {
	hint   SchemaHint
	logger zerolog.Logger
}

// NewHeuristic creates a rule-based intent provider.
func NewHeuristic(hint SchemaHint, logger zerolog.Logger) *HeuristicProvider {
	return &HeuristicProvider{hint: hint, logger: logger}
}

// Name identifies the provider.
func (p *HeuristicProvider) Name() string { return "heuristic" }

var (
	wordPattern      = regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)
	predicatePattern = regexp.MustCompile(`\b([a-zA-Z_][a-zA-Z0-9_]*)\s*(>=|<=|=|>|<)\s*([\w.']+)`)
)

var aggregationKeywords = []struct {
	pattern *regexp.Regexp
	fn      string
}{
	{regexp.MustCompile(`\bcount\b|\bhow many\b|\bnumber of\b`), "COUNT"},
	{regexp.MustCompile(`\baverage\b|\bavg\b|\bmean\b`), "AVG"},
	{regexp.MustCompile(`\bmaximum\b|\bmax\b|\bhighest\b|\blargest\b`), "MAX"},
	{regexp.MustCompile(`\bminimum\b|\bmin\b|\blowest\b|\bsmallest\b`), "MIN"},
	{regexp.MustCompile(`\bsum\b|\btotal\b`), "SUM"},
}

var temporalKeywords = []string{
	"today", "yesterday", "this week", "last week",
	"this month", "last month", "this year", "last year", "recent",
}

var stopwords = map[string]bool{
	"a": true, "all": true, "an": true, "and": true, "are": true,
	"by": true, "for": true, "from": true, "get": true, "give": true,
	"in": true, "is": true, "its": true, "list": true, "me": true,
	"of": true, "on": true, "or": true, "show": true, "than": true,
	"that": true, "the": true, "their": true, "to": true, "what": true,
	"where": true, "which": true, "with": true, "who": true, "whose": true,
	"find": true, "display": true, "each": true, "per": true, "how": true,
	"many": true, "much": true, "greater": true, "less": true, "equal": true,
	"count": true, "average": true, "avg": true, "max": true, "min": true,
	"maximum": true, "minimum": true, "sum": true, "total": true,
	"number": true, "highest": true, "lowest": true, "largest": true,
	"smallest": true, "mean": true, "recent": true,
}

// Understand applies the extraction rules. Locale is accepted for interface
// parity; the rules are English-only.
func (p *HeuristicProvider) Understand(_ context.Context, text, _ string) (*models.Intent, error) {
	lower := strings.ToLower(text)
	schema := map[string][]string{}
	if p.hint != nil {
		schema = p.hint()
	}

	var entities []string
	seen := map[string]bool{}

	// Table mentions, full-word only, allowing the simple singular form.
	for table := range schema {
		tl := strings.ToLower(table)
		if matchWord(lower, tl) || (strings.HasSuffix(tl, "s") && matchWord(lower, strings.TrimSuffix(tl, "s"))) {
			if !seen[table] {
				entities = append(entities, table)
				seen[table] = true
			}
		}
	}
	resolvedTables := len(entities)

	// Column mentions, only from already-detected tables.
	for _, table := range entities[:resolvedTables] {
		for _, col := range schema[table] {
			cl := strings.ToLower(col)
			if matchWord(lower, cl) && !seen[col] {
				entities = append(entities, col)
				seen[col] = true
			}
		}
	}

	var aggregation string
	for _, kw := range aggregationKeywords {
		if kw.pattern.MatchString(lower) {
			aggregation = kw.fn
			break
		}
	}

	var hints []string
	for _, kw := range temporalKeywords {
		if strings.Contains(lower, kw) {
			hints = append(hints, kw)
		}
	}

	predicates := extractPredicates(lower, text, schema)

	// When nothing matched the schema, keep the content words as unresolved
	// entities so downstream fuzzy correction has something to narrow.
	if resolvedTables == 0 {
		for _, word := range wordPattern.FindAllString(lower, -1) {
			if len(word) > 2 && !stopwords[word] && !seen[word] {
				entities = append(entities, word)
				seen[word] = true
			}
		}
	}

	op := models.OperationSelect
	switch {
	case aggregation != "":
		op = models.OperationAggregate
	case resolvedTables > 1:
		op = models.OperationJoinImplied
	case len(predicates) > 0:
		op = models.OperationFilter
	}

	confidence := scoreConfidence(resolvedTables, len(entities), len(predicates), aggregation)

	p.logger.Debug().
		Str("operation", string(op)).
		Strs("entities", entities).
		Float64("confidence", confidence).
		Msg("Heuristic intent extracted")

	return &models.Intent{
		Operation:      op,
		TargetEntities: entities,
		Predicates:     predicates,
		Aggregation:    aggregation,
		TemporalHints:  hints,
		Confidence:     confidence,
	}, nil
}

func matchWord(text, word string) bool {
	if word == "" {
		return false
	}
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordChar(text[start-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func extractPredicates(lower, original string, schema map[string][]string) []models.Predicate {
	normalized := strings.NewReplacer(
		"greater than or equal to", ">=",
		"less than or equal to", "<=",
		"greater than", ">",
		"less than", "<",
		"equal to", "=",
		"at least", ">=",
		"at most", "<=",
		"above", ">",
		"below", "<",
	).Replace(lower)

	columns := map[string]string{}
	for _, cols := range schema {
		for _, c := range cols {
			columns[strings.ToLower(c)] = c
		}
	}

	var predicates []models.Predicate
	for _, m := range predicatePattern.FindAllStringSubmatch(normalized, -1) {
		field, ok := columns[m[1]]
		if !ok {
			// Unknown columns still become predicates; validation and the
			// correction strategies decide their fate.
			field = m[1]
		}
		predicates = append(predicates, models.Predicate{
			Field:    field,
			Operator: m[2],
			Value:    parseValue(strings.Trim(m[3], "'")),
		})
	}
	return predicates
}

func parseValue(raw string) any {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// scoreConfidence grades the extraction: resolved tables dominate, supporting
// signals nudge upward, a miss leaves only a residue of confidence.
func scoreConfidence(resolvedTables, entities, predicates int, aggregation string) float64 {
	if resolvedTables == 0 {
		if entities > 0 {
			return 0.3
		}
		return 0
	}
	score := 0.6
	if entities > resolvedTables {
		score += 0.15
	}
	if predicates > 0 {
		score += 0.1
	}
	if aggregation != "" {
		score += 0.1
	}
	if resolvedTables == 1 {
		score += 0.05
	}
	if score > 1 {
		score = 1
	}
	return score
}
