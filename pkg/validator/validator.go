// Package validator performs static safety validation of SQL candidates.
// Validation never touches a backend: it classifies statement shape,
// rejects everything that is not a read, and confines identifier
// references to the caller's visible slice of the schema. It runs before
// every execution attempt, including corrected retries.
package validator

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/manideep395/QueryPilot-AI/pkg/models"
)

// Violation kinds reported on a verdict.
const (
	ViolationMultiStatement  = "multi-statement"
	ViolationNonRead         = "non-read-statement"
	ViolationInjection       = "injection-pattern"
	ViolationRawLiteral      = "unparameterized-literal"
	ViolationTableNotVisible = "table-not-visible"
	ViolationUnknownColumn   = "unknown-column"
	ViolationMalformed       = "malformed-statement"
)

// Validator classifies candidate statements with compiled pattern sets.
// Safe for concurrent use; all patterns are compiled once at construction.
type Validator struct {
	nonReadPatterns   []*regexp.Regexp
	injectionPatterns []*regexp.Regexp
	logger            zerolog.Logger
}

// New creates a validator.
func New(logger zerolog.Logger) *Validator {
	return &Validator{
		nonReadPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^\s*CREATE\s+`),
			regexp.MustCompile(`(?i)^\s*DROP\s+`),
			regexp.MustCompile(`(?i)^\s*ALTER\s+`),
			regexp.MustCompile(`(?i)^\s*TRUNCATE\s+`),
			regexp.MustCompile(`(?i)^\s*RENAME\s+`),
			regexp.MustCompile(`(?i)^\s*INSERT\s+`),
			regexp.MustCompile(`(?i)^\s*UPDATE\s+`),
			regexp.MustCompile(`(?i)^\s*DELETE\s+`),
			regexp.MustCompile(`(?i)^\s*REPLACE\s+`),
			regexp.MustCompile(`(?i)^\s*MERGE\s+`),
			regexp.MustCompile(`(?i)^\s*COPY\s+`),
			regexp.MustCompile(`(?i)^\s*GRANT\s+`),
			regexp.MustCompile(`(?i)^\s*REVOKE\s+`),
			regexp.MustCompile(`(?i)^\s*BEGIN\b`),
			regexp.MustCompile(`(?i)^\s*COMMIT\b`),
			regexp.MustCompile(`(?i)^\s*ROLLBACK\b`),
			regexp.MustCompile(`(?i)^\s*SET\s+`),
			regexp.MustCompile(`(?i)^\s*PRAGMA\s+`),
			regexp.MustCompile(`(?i)^\s*ATTACH\s+`),
			regexp.MustCompile(`(?i)^\s*VACUUM\b`),
			regexp.MustCompile(`(?i)\bINTO\s+OUTFILE\b`),
		},
		injectionPatterns: []*regexp.Regexp{
			regexp.MustCompile(`--`),
			regexp.MustCompile(`/\*`),
			regexp.MustCompile(`(?i)UNION\s+(ALL\s+)?SELECT`),
			regexp.MustCompile(`(?i)\bOR\s+1\s*=\s*1\b`),
			regexp.MustCompile(`(?i)\bAND\s+1\s*=\s*1\b`),
			regexp.MustCompile(`(?i)'\s*OR\s*'`),
			regexp.MustCompile(`(?i)\bEXEC(UTE)?\s*\(`),
			regexp.MustCompile(`(?i)\bSLEEP\s*\(`),
			regexp.MustCompile(`(?i)\bLOAD_FILE\s*\(`),
		},
		logger: logger,
	}
}

// Validate renders a verdict for one candidate against the caller's visible
// tables. A rejected verdict lists every violation found, not just the
// first, so corrections can see the whole picture.
func (v *Validator) Validate(candidate *models.SQLCandidate, schema *models.SchemaMetadata, visible []string) models.ValidationVerdict {
	var violations []models.Violation
	add := func(kind, detail string) {
		violations = append(violations, models.Violation{Kind: kind, Detail: detail})
	}

	text := strings.TrimSpace(candidate.Text)
	if text == "" {
		add(ViolationMalformed, "empty statement")
		return models.ValidationVerdict{Violations: violations}
	}

	if !balancedQuotes(text) {
		add(ViolationMalformed, "unbalanced quotes")
	}
	if !balancedParens(text) {
		add(ViolationMalformed, "unbalanced parentheses")
	}

	if pos := statementSeparator(text); pos >= 0 {
		add(ViolationMultiStatement, "statement separator at offset "+strconv.Itoa(pos))
	}

	for _, p := range v.nonReadPatterns {
		if p.MatchString(text) {
			add(ViolationNonRead, p.String())
			break
		}
	}
	if !selectPattern.MatchString(text) && len(violations) == 0 {
		add(ViolationNonRead, "statement is not a select")
	}

	for _, p := range v.injectionPatterns {
		if p.MatchString(text) {
			add(ViolationInjection, p.String())
		}
	}

	if detail, ok := rawLiteral(text); ok {
		add(ViolationRawLiteral, detail)
	}

	visibleSet := make(map[string]bool, len(visible))
	for _, t := range visible {
		visibleSet[strings.ToLower(t)] = true
	}
	tables := referencedTables(text)
	for _, t := range tables {
		if !visibleSet[strings.ToLower(t)] {
			add(ViolationTableNotVisible, t)
		}
	}

	if schema != nil {
		for _, detail := range unknownColumns(text, schema, tables) {
			add(ViolationUnknownColumn, detail)
		}
	}

	verdict := models.ValidationVerdict{
		Accepted:   len(violations) == 0,
		Violations: violations,
	}
	if !verdict.Accepted {
		v.logger.Debug().Int("violations", len(violations)).Str("first", violations[0].Kind+": "+violations[0].Detail).Msg("Candidate rejected")
	}
	return verdict
}

var (
	selectPattern    = regexp.MustCompile(`(?i)^\s*SELECT\s+`)
	tableRefPattern  = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+([a-zA-Z_][a-zA-Z0-9_]*)`)
	wherePattern     = regexp.MustCompile(`(?i)\bWHERE\b(.*)$`)
	fieldRefPattern  = regexp.MustCompile(`([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*)?)\s*(?:>=|<=|!=|<>|=|>|<|\bLIKE\b|\bIN\b)`)
	numericLiteral   = regexp.MustCompile(`(?:>=|<=|!=|<>|=|>|<)\s*\d`)
	quotedLiteral    = regexp.MustCompile(`'[^']*'`)
)

// statementSeparator finds a semicolon outside string literals that has
// content after it. A single trailing semicolon is tolerated.
func statementSeparator(text string) int {
	inString := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '\'' {
			inString = !inString
			continue
		}
		if c == ';' && !inString {
			if strings.TrimSpace(text[i+1:]) != "" {
				return i
			}
		}
	}
	return -1
}

// rawLiteral reports inline values where a parameter placeholder belongs.
// Planner output always carries values in Params, so any literal in a
// comparison marks a statement that bypassed planning.
func rawLiteral(text string) (string, bool) {
	m := wherePattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	clause := m[1]
	if lit := quotedLiteral.FindString(clause); lit != "" {
		return lit, true
	}
	if lit := numericLiteral.FindString(clause); lit != "" {
		return strings.TrimSpace(lit), true
	}
	return "", false
}

// referencedTables extracts table names following FROM and JOIN.
func referencedTables(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range tableRefPattern.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			out = append(out, m[1])
			seen[m[1]] = true
		}
	}
	return out
}

// unknownColumns checks WHERE clause fields against the columns of the
// referenced tables. Qualified fields must name a referenced table and one
// of its columns; bare fields must exist on at least one referenced table.
func unknownColumns(text string, schema *models.SchemaMetadata, tables []string) []string {
	m := wherePattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}

	byTable := map[string]models.Table{}
	for _, t := range tables {
		if tab, ok := schema.Tables[t]; ok {
			byTable[strings.ToLower(t)] = tab
		}
	}

	var out []string
	for _, ref := range fieldRefPattern.FindAllStringSubmatch(m[1], -1) {
		field := ref[1]
		if upper := strings.ToUpper(field); upper == "AND" || upper == "OR" || upper == "NOT" {
			continue
		}
		if table, col, ok := strings.Cut(field, "."); ok {
			tab, known := byTable[strings.ToLower(table)]
			if !known || !tab.HasColumn(col) {
				out = append(out, field)
			}
			continue
		}
		found := false
		for _, tab := range byTable {
			if tab.HasColumn(field) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, field)
		}
	}
	return out
}

func balancedQuotes(text string) bool {
	single, double := 0, 0
	for _, c := range text {
		switch c {
		case '\'':
			single++
		case '"':
			double++
		}
	}
	return single%2 == 0 && double%2 == 0
}

func balancedParens(text string) bool {
	depth := 0
	inString := false
	for _, c := range text {
		switch {
		case c == '\'':
			inString = !inString
		case c == '(' && !inString:
			depth++
		case c == ')' && !inString:
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}
