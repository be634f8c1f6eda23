// Package safety provides the read-only query validator. It is the single
// choke point for every dynamically produced query reaching the graph store
// through the copilot or raw-query paths; there is no bypass.
package safety

import (
	"fmt"
	"regexp"
	"strings"
)

// Result is the outcome of validating one query.
type Result struct {
	Valid  bool
	Reason string
}

// denylist holds mutating or scope-escaping keywords. Presence of any one as
// a standalone token is sufficient to reject; no AST-level precision is
// attempted. MERGE is deliberately absent (see the combined check below).
var denylist = []string{
	"CREATE",
	"DELETE",
	"DROP",
	"SET",
	"REMOVE",
	"DETACH",
	"FOREACH",
	"CALL",
	"WITH",
	"UNWIND",
}

// Keyword scanning is token-boundary based: SET as a word rejects, the
// substring inside a property name like createdAt does not. Keywords inside
// string literals still trigger rejection; callers pass values as bind
// parameters, never inline, so legitimate queries are unaffected.
var tokenPatterns = func() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(denylist)+3)
	for _, kw := range append(append([]string{}, denylist...), "MERGE", "MATCH", "RETURN") {
		patterns[kw] = regexp.MustCompile(`\b` + kw + `\b`)
	}
	return patterns
}()

func containsToken(upper, keyword string) bool {
	return tokenPatterns[keyword].MatchString(upper)
}

// Validate checks that a query is a well-formed read-only statement.
// It is a pure function with no I/O or side effects, and it makes no claim
// about query correctness or cost, only write-safety.
func Validate(query string) Result {
	upper := strings.ToUpper(strings.TrimSpace(query))

	// MERGE alone appears in some read-adjacent idioms, but MERGE combined
	// with CREATE or SET is a write.
	if containsToken(upper, "MERGE") && (containsToken(upper, "CREATE") || containsToken(upper, "SET")) {
		return Result{Valid: false, Reason: "MERGE with CREATE/SET is not allowed"}
	}

	for _, keyword := range denylist {
		if containsToken(upper, keyword) {
			return Result{
				Valid: false,
				Reason: fmt.Sprintf(
					"dangerous keyword %q is not allowed; only read-only queries (MATCH/RETURN) are permitted",
					keyword),
			}
		}
	}

	if !containsToken(upper, "MATCH") || !containsToken(upper, "RETURN") {
		return Result{Valid: false, Reason: "query must contain both MATCH and RETURN (read-only only)"}
	}

	return Result{Valid: true}
}
