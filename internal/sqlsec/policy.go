// Package sqlsec statically checks SQL text against a policy before it ever
// reaches the gateway. It is grounded on the pattern-caching shape of
// mazori-ai-modelgate's policy.Engine (patternCache map[string]*regexp.Regexp
// guarded by cacheMu, plus an EngineConfig of tunables) — generalized here
// from regex injection-pattern matching to a cached forbidden-keyword set
// matched against a hand-rolled SQL tokenizer, since SQL keyword checking
// needs exact-token equality rather than pattern search.
package sqlsec

import (
	"strings"
	"sync"

	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/errs"
)

// defaultForbiddenKeywords is the destructive-statement set every Policy
// carries regardless of per-tool overrides (spec.md §4.2). Overrides may
// only add to this set, never remove from it.
var defaultForbiddenKeywords = []string{
	"DROP", "DELETE", "TRUNCATE", "INSERT", "UPDATE",
	"GRANT", "REVOKE", "ALTER", "CREATE", "EXEC", "CALL",
}

const defaultMaxQueryLength = 10000

// Policy is the set of tunables a statement is checked against.
type Policy struct {
	ReadOnly          bool
	MaxQueryLength    int
	ExtraForbidden    []string
}

// DefaultPolicy matches spec.md §4.2's defaults: readOnly=true,
// maxQueryLength=10000, no extra forbidden keywords.
func DefaultPolicy() Policy {
	return Policy{ReadOnly: true, MaxQueryLength: defaultMaxQueryLength}
}

// Engine evaluates Policy checks against SQL text. It caches each distinct
// Policy's resolved forbidden-keyword set (merged defaults + extras) so
// repeated checks against the same tool don't re-merge the slice on every
// call, mirroring the teacher's patternCache/cacheMu pairing.
type Engine struct {
	cacheMu    sync.RWMutex
	setCache   map[string]map[string]struct{}
}

// NewEngine constructs an Engine with an empty keyword-set cache.
func NewEngine() *Engine {
	return &Engine{setCache: make(map[string]map[string]struct{})}
}

// Check statically validates sql against policy, returning a *errs.Error
// with Kind=KindValidation on any violation. It is pure and deterministic:
// the same (sql, policy) pair always produces the same verdict.
func (e *Engine) Check(sql string, policy Policy) error {
	maxLen := policy.MaxQueryLength
	if maxLen <= 0 {
		maxLen = defaultMaxQueryLength
	}
	if len(sql) > maxLen {
		return errs.Validation("sql", "statement exceeds maximum query length of %d characters", maxLen)
	}

	forbidden := e.forbiddenSet(policy.ExtraForbidden)
	tokens := tokenize(sql)

	for _, tok := range tokens {
		if tok.kind != tokenWord {
			continue
		}
		if _, bad := forbidden[tok.text]; bad {
			return errs.Validation("sql", "restricted keyword %q is not permitted", tok.text)
		}
	}

	if policy.ReadOnly {
		first := firstKeyword(tokens)
		if first != "SELECT" && first != "WITH" {
			return errs.Validation("sql", "read-only policy requires statement to begin with SELECT or WITH")
		}
	}

	return nil
}

// forbiddenSet returns the merged default+extra forbidden-keyword set for a
// given extras slice, computing it once per distinct extras combination.
func (e *Engine) forbiddenSet(extra []string) map[string]struct{} {
	key := strings.ToUpper(strings.Join(extra, ","))

	e.cacheMu.RLock()
	set, ok := e.setCache[key]
	e.cacheMu.RUnlock()
	if ok {
		return set
	}

	set = make(map[string]struct{}, len(defaultForbiddenKeywords)+len(extra))
	for _, kw := range defaultForbiddenKeywords {
		set[kw] = struct{}{}
	}
	for _, kw := range extra {
		set[strings.ToUpper(strings.TrimSpace(kw))] = struct{}{}
	}

	e.cacheMu.Lock()
	e.setCache[key] = set
	e.cacheMu.Unlock()

	return set
}

// firstKeyword returns the first word-token's uppercased text, skipping
// leading comments, or "" if the statement has no word token at all.
func firstKeyword(tokens []token) string {
	for _, tok := range tokens {
		if tok.kind == tokenWord {
			return tok.text
		}
	}
	return ""
}
