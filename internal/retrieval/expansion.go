package retrieval

import (
	"sort"
	"strings"

	"github.com/loom-ai/loom/internal/lexical"
)

// synonyms maps query tokens to expansion terms. The table is small and
// hand-curated for the software-engineering vocabulary queries actually use;
// semantic breadth comes from the vector side, expansion only patches obvious
// lexical gaps.
var synonyms = map[string][]string{
	"create":    {"build", "make", "construct"},
	"build":     {"create", "construct"},
	"make":      {"create", "build"},
	"delete":    {"remove", "drop"},
	"remove":    {"delete", "drop"},
	"fetch":     {"get", "retrieve", "load"},
	"get":       {"fetch", "retrieve"},
	"retrieve":  {"fetch", "get"},
	"save":      {"store", "persist", "write"},
	"store":     {"save", "persist"},
	"persist":   {"save", "store"},
	"error":     {"failure", "exception"},
	"failure":   {"error", "fault"},
	"test":      {"check", "verify"},
	"verify":    {"check", "validate"},
	"validate":  {"verify", "check"},
	"function":  {"method", "procedure"},
	"method":    {"function"},
	"class":     {"type", "struct"},
	"type":      {"class", "struct"},
	"config":    {"configuration", "settings"},
	"settings":  {"config", "configuration"},
	"parse":     {"decode", "read"},
	"decode":    {"parse", "unmarshal"},
	"encode":    {"serialize", "marshal"},
	"serialize": {"encode", "marshal"},
	"file":      {"path", "document"},
	"directory": {"folder", "dir"},
	"folder":    {"directory", "dir"},
	"http":      {"rest", "api", "request"},
	"api":       {"http", "endpoint"},
	"database":  {"db", "storage", "sql"},
	"db":        {"database", "storage"},
	"cache":     {"memoize", "store"},
	"sort":      {"order", "rank"},
	"log":       {"logging", "logger"},
	"async":     {"concurrent", "parallel"},
	"singleton": {"instance", "global"},
	"factory":   {"constructor", "builder"},
}

// maxExpansions bounds how many variant queries one request gains, so
// expansion can never drown out the literal query.
const maxExpansions = 3

// ExpandQueries returns the query followed by a bounded, deterministic set of
// synonym-expanded variants, one per query token that has synonyms. The first
// element is always the original query, and the same query always expands to
// the same slice.
func ExpandQueries(query string) []string {
	out := []string{query}

	tokens := lexical.Tokenize(query)
	if len(tokens) == 0 {
		return out
	}

	present := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		present[t] = true
	}

	unique := make([]string, 0, len(tokens))
	seen := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			unique = append(unique, t)
		}
	}
	sort.Strings(unique)

	for _, t := range unique {
		if len(out) > maxExpansions {
			break
		}
		var extra []string
		for _, syn := range synonyms[t] {
			if !present[syn] {
				extra = append(extra, syn)
			}
		}
		if len(extra) == 0 {
			continue
		}
		sort.Strings(extra)
		out = append(out, query+" "+strings.Join(extra, " "))
	}
	return out
}
