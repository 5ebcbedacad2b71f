package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Operators a structured query leaf can use.
const (
	OpEq       = "eq"
	OpNeq      = "neq"
	OpGt       = "gt"
	OpGte      = "gte"
	OpLt       = "lt"
	OpLte      = "lte"
	OpRegex    = "regex"
	OpContains = "contains"
)

var allOperators = map[string]bool{
	OpEq: true, OpNeq: true, OpGt: true, OpGte: true,
	OpLt: true, OpLte: true, OpRegex: true, OpContains: true,
}

var rangeOperators = map[string]bool{
	OpGt: true, OpGte: true, OpLt: true, OpLte: true,
}

// Combinators joining structured query sub-trees.
const (
	JoinAnd = "and"
	JoinOr  = "or"
	JoinNot = "not"
)

// fieldMapping describes one logical field callers can query: where
// it lives in the index, whether exact matches go through a keyword
// variant, what type it holds, and which operators apply.
type fieldMapping struct {
	// path names the nested subdocument, empty for top-level fields.
	path string

	// keyword means exact matches run against the field's ".keyword"
	// variant.
	keyword bool

	// numeric and boolean fields reject pattern-match operators.
	typ string // "text", "long", "float", "bool", "date"

	// ops restricts the allowed operators; nil means all.
	ops []string
}

var fieldMappings = map[string]fieldMapping{
	"audience":                  {},
	"author":                    {keyword: true},
	"classifications.scheme":    {keyword: true},
	"classifications.term":      {keyword: true},
	"contributors.display_name": {keyword: true, path: SubdocContributors},
	"contributors.family_name":  {keyword: true, path: SubdocContributors},
	"contributors.lc":           {path: SubdocContributors},
	"contributors.role":         {path: SubdocContributors},
	"contributors.sort_name":    {keyword: true, path: SubdocContributors},
	"contributors.viaf":         {path: SubdocContributors},
	"fiction":                   {keyword: true},
	"genres.name":               {path: SubdocGenres},
	"genres.scheme":             {path: SubdocGenres},
	"genres.term":               {path: SubdocGenres},
	"genres.weight":             {path: SubdocGenres, typ: "float"},
	"identifiers.identifier":    {path: SubdocIdentifiers},
	"identifiers.type":          {path: SubdocIdentifiers},
	"imprint":                   {keyword: true},

	// Exact term matches without text fuzziness, but no ".keyword"
	// variant exists for this field.
	"language": {typ: "exact"},

	"licensepools.available":         {path: SubdocLicensePools, typ: "bool"},
	"licensepools.availability_time": {path: SubdocLicensePools, typ: "date"},
	"licensepools.collection_id":     {path: SubdocLicensePools, typ: "long"},
	"licensepools.data_source_id":    {path: SubdocLicensePools, typ: "long", ops: []string{OpEq, OpNeq}},
	"licensepools.licensed":          {path: SubdocLicensePools, typ: "bool"},
	"licensepools.medium":            {path: SubdocLicensePools},
	"licensepools.open_access":       {path: SubdocLicensePools, typ: "bool"},
	"licensepools.quality":           {path: SubdocLicensePools, typ: "float"},
	"licensepools.suppressed":        {path: SubdocLicensePools, typ: "bool"},

	"medium":             {keyword: true},
	"presentation_ready": {typ: "bool"},
	"publisher":          {keyword: true},
	"published":          {typ: "date"},
	"quality":            {typ: "float"},
	"series":             {keyword: true},
	"sort_author":        {},
	"sort_title":         {},
	"subtitle":           {keyword: true},
	"target_age":         {typ: "long"},
	"title":              {keyword: true},
	"work_id":            {typ: "long"},
}

// Friendly field names clients may use instead of index paths.
var fieldTransforms = map[string]string{
	"genre":          "genres.name",
	"open_access":    "licensepools.open_access",
	"available":      "licensepools.available",
	"classification": "classifications.term",
	"data_source":    "licensepools.data_source_id",
}

// Regex metacharacters escaped before a value is used in a
// pattern-match query.
const regexReservedChars = `.?+*|{}[]()"\#@&<>~`

var regexEscaper = buildRegexEscaper()

func buildRegexEscaper() *strings.Replacer {
	pairs := make([]string, 0, len(regexReservedChars)*2)
	for _, ch := range regexReservedChars {
		pairs = append(pairs, string(ch), `\`+string(ch))
	}
	return strings.NewReplacer(pairs...)
}

// DataSourceResolver turns a data source display name into its
// internal id. Implementations are expected to cache; resolution
// happens on every query that filters by source name.
type DataSourceResolver interface {
	DataSourceID(ctx context.Context, name string) (int64, bool)
}

// JSONQuery translates a structured boolean query tree, supplied by a
// caller as JSON, into backend query clauses. A node is either a leaf
// {key, value, op} or a combinator {"and"|"or"|"not": [node, ...]}.
type JSONQuery struct {
	Root   map[string]any
	Filter *Filter

	// Resolver is consulted for data-source name lookups; without
	// one, unknown names resolve to a non-id.
	Resolver DataSourceResolver
}

// NewJSONQuery parses raw JSON into a structured query. The document
// must carry the query tree under a top-level "query" key.
func NewJSONQuery(raw []byte, filter *Filter) (*JSONQuery, error) {
	var root map[string]any
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, parseErrorf("'%s' is not valid json", string(raw))
	}
	return &JSONQuery{Root: root, Filter: filter}, nil
}

// SearchQuery converts the query tree to backend clauses.
func (jq *JSONQuery) SearchQuery(ctx context.Context) (M, error) {
	tree, ok := jq.Root["query"]
	if !ok {
		return nil, parseErrorf("'query' key must be present as the root")
	}
	node, ok := tree.(map[string]any)
	if !ok {
		return nil, parseErrorf("could not make sense of the query: %v", tree)
	}
	return jq.parseNode(ctx, node)
}

func (jq *JSONQuery) parseNode(ctx context.Context, node map[string]any) (M, error) {
	if len(node) == 0 {
		return M{}, nil
	}

	_, hasKey := node["key"]
	_, hasValue := node["value"]
	if hasKey && hasValue {
		return jq.parseLeaf(ctx, node)
	}

	onlyJoins := true
	for k := range node {
		if k != JoinAnd && k != JoinOr && k != JoinNot {
			onlyJoins = false
			break
		}
	}
	if onlyJoins {
		return jq.parseJoin(ctx, node)
	}
	return nil, parseErrorf("could not make sense of the query: %v", node)
}

func (jq *JSONQuery) parseLeaf(ctx context.Context, node map[string]any) (M, error) {
	op := OpEq
	if rawOp, ok := node["op"]; ok {
		opStr, ok := rawOp.(string)
		if !ok || !allOperators[opStr] {
			return nil, parseErrorf("unrecognized operator: %v", rawOp)
		}
		op = opStr
	}

	oldKey, ok := node["key"].(string)
	if !ok {
		return nil, parseErrorf("could not make sense of the query: %v", node)
	}
	value := node["value"]

	var err error
	value, err = jq.transformValue(ctx, oldKey, value)
	if err != nil {
		return nil, err
	}

	key := oldKey
	if transformed, ok := fieldTransforms[oldKey]; ok {
		key = transformed
	}

	mapping, ok := fieldMappings[key]
	if !ok {
		return nil, parseErrorf("unrecognized key: %s", oldKey)
	}

	if mapping.ops != nil {
		allowed := false
		for _, a := range mapping.ops {
			if a == op {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, parseErrorf("operator '%s' is not allowed for '%s'. Only use %v", op, oldKey, mapping.ops)
		}
	}

	if op == OpRegex || op == OpContains {
		s, ok := value.(string)
		if !ok || mapping.typ == "long" || mapping.typ == "float" ||
			mapping.typ == "bool" || mapping.typ == "date" {
			return nil, parseErrorf("operator '%s' is not allowed for '%s': the field does not support pattern matching", op, oldKey)
		}
		value = regexEscaper.Replace(s)
	}

	fieldName := key
	if mapping.keyword {
		fieldName = key + ".keyword"
	}

	var clause M
	switch op {
	case OpEq:
		clause = Term(fieldName, value)
	case OpNeq:
		clause = Bool{MustNot: []M{Term(fieldName, value)}}.Map()
	case OpGt, OpGte, OpLt, OpLte:
		// Range operators go against the raw field path; the
		// keyword/text distinction does not apply to numeric or date
		// fields.
		clause = RangeClause(key, op, value)
	case OpRegex:
		clause = M{"regexp": M{fieldName: M{"value": value, "flags": "ALL"}}}
	case OpContains:
		clause = M{"regexp": M{fieldName: M{"value": fmt.Sprintf(".*%v.*", value), "flags": "ALL"}}}
	}

	if mapping.path != "" {
		clause = Nested(mapping.path, clause)
	}
	return clause, nil
}

func (jq *JSONQuery) parseJoin(ctx context.Context, node map[string]any) (M, error) {
	if len(node) != 1 {
		return nil, parseErrorf("a conjunction cannot have multiple parts in the same sub-query")
	}

	var join string
	var rawParts any
	for k, v := range node {
		join, rawParts = k, v
	}

	parts, ok := rawParts.([]any)
	if !ok {
		return nil, parseErrorf("could not make sense of the query: %v", node)
	}

	var joined []M
	for _, rawPart := range parts {
		part, ok := rawPart.(map[string]any)
		if !ok {
			return nil, parseErrorf("could not make sense of the query: %v", rawPart)
		}
		clause, err := jq.parseNode(ctx, part)
		if err != nil {
			return nil, err
		}
		joined = append(joined, clause)
	}

	switch join {
	case JoinAnd:
		return Bool{Must: joined}.Map(), nil
	case JoinOr:
		return Bool{Should: joined}.Map(), nil
	default:
		return Bool{MustNot: joined}.Map(), nil
	}
}

// transformValue applies per-field value encodings: data source names
// become internal ids, published dates become epoch seconds, language
// names become ISO codes, audiences are scrubbed to their stored
// form.
func (jq *JSONQuery) transformValue(ctx context.Context, key string, value any) (any, error) {
	switch key {
	case "data_source":
		name, ok := value.(string)
		if !ok {
			return value, nil
		}
		if jq.Resolver != nil {
			if id, found := jq.Resolver.DataSourceID(ctx, name); found {
				return id, nil
			}
		}
		// No such source; match nothing rather than erroring.
		return int64(0), nil
	case "published":
		raw, ok := value.(string)
		if !ok {
			return nil, parseErrorf("could not parse 'published' value '%v'. Only use 'YYYY-MM-DD'", value)
		}
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, parseErrorf("could not parse 'published' value '%s'. Only use 'YYYY-MM-DD'", raw)
		}
		return float64(t.Unix()), nil
	case "language":
		if s, ok := value.(string); ok {
			return LanguageToAlpha3(s), nil
		}
		return value, nil
	case "audience":
		if s, ok := value.(string); ok {
			return Scrub(s), nil
		}
		return value, nil
	}
	return value, nil
}
