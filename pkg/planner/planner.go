// Package planner turns structured intents into ranked SQL candidates.
// Planning is deterministic: the same intent against the same schema
// snapshot always yields the same candidate list, possibly empty. An
// empty list means the question could not be grounded in the schema,
// which is a normal outcome rather than an error.
package planner

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/rs/zerolog"

	"github.com/manideep395/QueryPilot-AI/pkg/models"
)

// Rule identifiers recorded on candidate derivations.
const (
	RuleProjection    = "projection"
	RuleColumnProject = "column-projection"
	RuleAggregate     = "aggregate"
	RuleFilter        = "filter"
	RuleJoin          = "fk-join"
	RuleJoinAggregate = "fk-join-aggregate"
)

// Config parameterizes planning.
type Config struct {
	// FuzzyMaxDistance is the largest Levenshtein distance accepted when
	// resolving an entity name against the schema. Zero disables fuzzy
	// resolution entirely.
	FuzzyMaxDistance int
}

// Options steer a re-plan during correction. The zero value is baseline
// planning.
type Options struct {
	// DropUnknownPredicates removes predicates whose field does not resolve
	// to a column of the candidate's tables instead of carrying them through.
	DropUnknownPredicates bool
	// AvoidTables excludes tables from join path search so a re-plan can
	// route around a relation that failed.
	AvoidTables map[string]bool
}

// Planner generates SQL candidates from intents. Safe for concurrent use.
type Planner struct {
	fuzzyMaxDistance int
	logger           zerolog.Logger
}

// New creates a planner.
func New(cfg Config, logger zerolog.Logger) *Planner {
	return &Planner{
		fuzzyMaxDistance: cfg.FuzzyMaxDistance,
		logger:           logger,
	}
}

// Plan generates candidates with baseline options.
func (p *Planner) Plan(intent *models.Intent, schema *models.SchemaMetadata, visible []string) []models.SQLCandidate {
	return p.PlanWith(intent, schema, visible, Options{})
}

// PlanWith generates candidates, ranked by estimated cost ascending with
// the candidate text as final tie-break. Every predicate value travels as
// a parameter; candidate text only ever contains `?` placeholders.
func (p *Planner) PlanWith(intent *models.Intent, schema *models.SchemaMetadata, visible []string, opts Options) []models.SQLCandidate {
	if intent == nil || schema == nil {
		return nil
	}

	visibleSet := make(map[string]bool, len(visible))
	for _, t := range visible {
		visibleSet[t] = true
	}

	tables, columns := p.resolveEntities(intent.TargetEntities, schema, visibleSet)
	if len(tables) == 0 {
		p.logger.Debug().Strs("entities", intent.TargetEntities).Msg("No entity resolved, planning yields nothing")
		return nil
	}

	var candidates []models.SQLCandidate
	if len(tables) >= 2 {
		candidates = append(candidates, p.planJoin(intent, schema, tables, columns, visibleSet, opts)...)
	}
	if len(candidates) == 0 {
		candidates = append(candidates, p.planSingle(intent, schema, tables[0], columns, opts)...)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].EstimatedCost != candidates[j].EstimatedCost {
			return candidates[i].EstimatedCost < candidates[j].EstimatedCost
		}
		return candidates[i].Text < candidates[j].Text
	})

	p.logger.Debug().
		Int("candidates", len(candidates)).
		Strs("tables", tables).
		Msg("Planning complete")
	return candidates
}

// resolveEntities maps intent entities onto visible schema tables and their
// columns. Tables keep mention order; columns are grouped by owning table.
// Fuzzy resolution is bounded so "custmers" finds "customers" but an
// unrelated word finds nothing.
func (p *Planner) resolveEntities(entities []string, schema *models.SchemaMetadata, visible map[string]bool) ([]string, map[string][]string) {
	var names []string
	for name := range schema.Tables {
		if visible[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var tables []string
	tableSeen := map[string]bool{}
	columns := map[string][]string{}
	var unresolved []string

	for _, entity := range entities {
		if t, ok := resolveName(entity, names, p.fuzzyMaxDistance); ok {
			if !tableSeen[t] {
				tables = append(tables, t)
				tableSeen[t] = true
			}
			continue
		}
		unresolved = append(unresolved, entity)
	}

	// Second pass: remaining entities may be columns of a resolved table.
	for _, entity := range unresolved {
		for _, t := range tables {
			var colNames []string
			for _, c := range schema.Tables[t].Columns {
				colNames = append(colNames, c.Name)
			}
			if col, ok := resolveName(entity, colNames, p.fuzzyMaxDistance); ok {
				columns[t] = append(columns[t], col)
				break
			}
		}
	}
	return tables, columns
}

// resolveName matches an entity against candidate names: exact fold first,
// then the simple singular/plural form, then bounded Levenshtein distance
// with lexical tie-break.
func resolveName(entity string, names []string, maxDist int) (string, bool) {
	el := strings.ToLower(entity)
	for _, n := range names {
		if strings.ToLower(n) == el {
			return n, true
		}
	}
	for _, n := range names {
		nl := strings.ToLower(n)
		if nl == el+"s" || el == nl+"s" {
			return n, true
		}
	}
	if maxDist <= 0 {
		return "", false
	}
	best, bestDist := "", maxDist+1
	for _, n := range names {
		d := fuzzy.LevenshteinDistance(el, strings.ToLower(n))
		if d < bestDist || (d == bestDist && best != "" && n < best) {
			best, bestDist = n, d
		}
	}
	if bestDist <= maxDist {
		return best, true
	}
	return "", false
}

// planSingle builds candidates over one table.
func (p *Planner) planSingle(intent *models.Intent, schema *models.SchemaMetadata, table string, columns map[string][]string, opts Options) []models.SQLCandidate {
	t := schema.Tables[table]
	cost := rowCost(t)

	where, params := p.buildWhere(intent.Predicates, []models.Table{t}, false, opts)

	if intent.Aggregation != "" {
		return p.planAggregate(intent, schema, table, "FROM "+table, 0, columns, where, params)
	}

	var candidates []models.SQLCandidate
	ruleID := RuleProjection
	if len(where) > 0 {
		ruleID = RuleFilter
	}
	candidates = append(candidates, models.SQLCandidate{
		Text:          "SELECT * FROM " + table + where,
		Params:        params,
		EstimatedCost: cost,
		Derivation:    models.Derivation{RuleID: ruleID, SchemaVersion: schema.Version},
	})

	if cols := columns[table]; len(cols) > 0 {
		candidates = append(candidates, models.SQLCandidate{
			Text:          "SELECT " + strings.Join(cols, ", ") + " FROM " + table + where,
			Params:        append([]any(nil), params...),
			EstimatedCost: cost * 0.9,
			Derivation:    models.Derivation{RuleID: RuleColumnProject, SchemaVersion: schema.Version},
		})
	}
	return candidates
}

// planAggregate builds aggregate candidates over an already-built FROM
// clause. COUNT without a resolved column counts rows; the other functions
// need a column, falling back to the numeric columns of the primary table
// when none was mentioned.
func (p *Planner) planAggregate(intent *models.Intent, schema *models.SchemaMetadata, primary, from string, joins int, columns map[string][]string, where string, params []any) []models.SQLCandidate {
	t := schema.Tables[primary]
	cost := float64(joins+1) * rowCost(t)
	qualify := joins > 0

	rule := RuleAggregate
	if joins > 0 {
		rule = RuleJoinAggregate
	}
	mk := func(target string, rank float64) models.SQLCandidate {
		return models.SQLCandidate{
			Text:          fmt.Sprintf("SELECT %s(%s) %s%s", intent.Aggregation, target, from, where),
			Params:        append([]any(nil), params...),
			EstimatedCost: cost * rank,
			Derivation:    models.Derivation{RuleID: rule, SchemaVersion: schema.Version},
		}
	}

	if cols := columns[primary]; len(cols) > 0 {
		target := cols[0]
		if qualify {
			target = primary + "." + target
		}
		return []models.SQLCandidate{mk(target, 1)}
	}

	if intent.Aggregation == "COUNT" {
		return []models.SQLCandidate{mk("*", 1)}
	}

	// No column mentioned: one candidate per numeric column, capped, so the
	// validator and executor settle the ambiguity in rank order.
	var out []models.SQLCandidate
	numeric := numericColumns(t)
	for i, col := range numeric {
		if i == 3 {
			break
		}
		target := col
		if qualify {
			target = primary + "." + target
		}
		out = append(out, mk(target, 1+float64(i)*0.01))
	}
	return out
}

// planJoin connects the first two resolved tables over the shortest foreign
// key path and projects from the first-mentioned table. The path may only
// traverse visible tables: a table outside the caller's allow-list never
// appears in a candidate, not even as a join intermediate.
func (p *Planner) planJoin(intent *models.Intent, schema *models.SchemaMetadata, tables []string, columns map[string][]string, visible map[string]bool, opts Options) []models.SQLCandidate {
	path := shortestJoinPath(schema, tables[0], tables[1], visible, opts.AvoidTables)
	if path == nil {
		return nil
	}

	from := "FROM " + tables[0]
	for _, step := range path {
		from += fmt.Sprintf(" JOIN %s ON %s", step.table, step.condition)
	}
	joins := len(path)

	involved := make([]models.Table, 0, joins+1)
	involved = append(involved, schema.Tables[tables[0]])
	for _, step := range path {
		involved = append(involved, schema.Tables[step.table])
	}
	where, params := p.buildWhere(intent.Predicates, involved, true, opts)

	if intent.Aggregation != "" {
		return p.planAggregate(intent, schema, tables[0], from, joins, columns, where, params)
	}

	sel := tables[0] + ".*"
	rule := RuleJoin
	if cols := columns[tables[0]]; len(cols) > 0 {
		qualified := make([]string, len(cols))
		for i, c := range cols {
			qualified[i] = tables[0] + "." + c
		}
		sel = strings.Join(qualified, ", ")
	}

	maxRows := rowCost(schema.Tables[tables[0]])
	for _, step := range path {
		if c := rowCost(schema.Tables[step.table]); c > maxRows {
			maxRows = c
		}
	}

	return []models.SQLCandidate{{
		Text:          "SELECT " + sel + " " + from + where,
		Params:        params,
		EstimatedCost: float64(joins+1) * maxRows,
		Derivation:    models.Derivation{RuleID: rule, SchemaVersion: schema.Version},
	}}
}

// buildWhere renders predicates as parameterized conditions. Fields that
// resolve to a column of an involved table are qualified when joining;
// unknown fields pass through verbatim unless dropped by options, leaving
// the verdict to validation.
func (p *Planner) buildWhere(predicates []models.Predicate, involved []models.Table, qualify bool, opts Options) (string, []any) {
	if len(predicates) == 0 {
		return "", nil
	}

	var conds []string
	var params []any
	for _, pred := range predicates {
		field, known := "", false
		for _, t := range involved {
			for _, c := range t.Columns {
				if strings.EqualFold(c.Name, pred.Field) {
					field, known = c.Name, true
					if qualify {
						field = t.Name + "." + field
					}
					break
				}
			}
			if known {
				break
			}
		}
		if !known {
			if opts.DropUnknownPredicates {
				continue
			}
			field = pred.Field
		}
		conds = append(conds, fmt.Sprintf("%s %s ?", field, pred.Operator))
		params = append(params, pred.Value)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), params
}

type joinStep struct {
	table     string
	condition string
}

// shortestJoinPath runs a breadth-first search over the foreign key graph in
// both directions, restricted to visible tables. Neighbors expand in lexical
// order so equal-length paths always resolve the same way.
func shortestJoinPath(schema *models.SchemaMetadata, from, to string, visible, avoid map[string]bool) []joinStep {
	adj := map[string]map[string]string{}
	link := func(a, b, cond string) {
		if adj[a] == nil {
			adj[a] = map[string]string{}
		}
		if _, ok := adj[a][b]; !ok {
			adj[a][b] = cond
		}
	}
	for name, t := range schema.Tables {
		for _, fk := range t.ForeignKeys {
			cond := fmt.Sprintf("%s.%s = %s.%s", name, fk.Column, fk.RefTable, fk.RefColumn)
			link(name, fk.RefTable, cond)
			link(fk.RefTable, name, cond)
		}
	}

	type node struct {
		table string
		path  []joinStep
	}
	queue := []node{{table: from}}
	visited := map[string]bool{from: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.table == to {
			return cur.path
		}
		var next []string
		for n := range adj[cur.table] {
			next = append(next, n)
		}
		sort.Strings(next)
		for _, n := range next {
			if visited[n] || avoid[n] || !visible[n] {
				continue
			}
			visited[n] = true
			path := append(append([]joinStep(nil), cur.path...), joinStep{table: n, condition: adj[cur.table][n]})
			queue = append(queue, node{table: n, path: path})
		}
	}
	return nil
}

func rowCost(t models.Table) float64 {
	if t.RowEstimate > 0 {
		return float64(t.RowEstimate)
	}
	return 1
}

var numericTypes = regexp.MustCompile(`(?i)int|decimal|numeric|real|float|double|money`)

func numericColumns(t models.Table) []string {
	var out []string
	for _, c := range t.Columns {
		if numericTypes.MatchString(c.Type) {
			out = append(out, c.Name)
		}
	}
	sort.Strings(out)
	return out
}

var joinTablePattern = regexp.MustCompile(`(?i)\bJOIN\s+([a-zA-Z_][a-zA-Z0-9_]*)`)

// JoinedTables lists the tables a candidate joins through, in order of
// appearance. Used to route a re-plan around a failed relation.
func JoinedTables(candidateText string) []string {
	var out []string
	for _, m := range joinTablePattern.FindAllStringSubmatch(candidateText, -1) {
		out = append(out, m[1])
	}
	return out
}

// ResolveEntity resolves one name against a candidate set with the given
// distance bound. Exposed for correction strategies that narrow unresolved
// intent entities against the visible schema.
func ResolveEntity(entity string, names []string, maxDist int) (string, bool) {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return resolveName(entity, sorted, maxDist)
}
