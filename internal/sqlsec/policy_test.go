package sqlsec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckAllowsPlainSelect(t *testing.T) {
	e := NewEngine()
	assert.NoError(t, e.Check("SELECT * FROM SYSIBM.SYSDUMMY1", DefaultPolicy()))
}

func TestCheckAllowsWithCTE(t *testing.T) {
	e := NewEngine()
	sql := "WITH x AS (SELECT 1 AS A FROM SYSIBM.SYSDUMMY1) SELECT * FROM x"
	assert.NoError(t, e.Check(sql, DefaultPolicy()))
}

func TestCheckRejectsTooLong(t *testing.T) {
	e := NewEngine()
	policy := DefaultPolicy()
	policy.MaxQueryLength = 10
	err := e.Check("SELECT * FROM VERY_LONG_TABLE_NAME", policy)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "maximum query length")
}

func TestCheckRejectsForbiddenKeyword(t *testing.T) {
	e := NewEngine()
	err := e.Check("DROP TABLE users", DefaultPolicy())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "restricted keyword")
}

func TestCheckIgnoresForbiddenKeywordInsideStringLiteral(t *testing.T) {
	e := NewEngine()
	policy := DefaultPolicy()
	policy.ReadOnly = false
	err := e.Check("SELECT * FROM t WHERE note = 'please do not DROP this'", policy)
	assert.NoError(t, err)
}

func TestCheckIgnoresForbiddenKeywordInsideLineComment(t *testing.T) {
	e := NewEngine()
	policy := DefaultPolicy()
	policy.ReadOnly = false
	sql := "SELECT * FROM t -- DROP TABLE should not trigger\n"
	assert.NoError(t, e.Check(sql, policy))
}

func TestCheckIgnoresForbiddenKeywordInsideBlockComment(t *testing.T) {
	e := NewEngine()
	policy := DefaultPolicy()
	policy.ReadOnly = false
	sql := "SELECT * /* DROP TABLE x */ FROM t"
	assert.NoError(t, e.Check(sql, policy))
}

func TestCheckRejectsForbiddenKeywordWithReadOnlyDisabled(t *testing.T) {
	e := NewEngine()
	policy := DefaultPolicy()
	policy.ReadOnly = false
	err := e.Check("UPDATE t SET x=1", policy)
	assert.Error(t, err, "UPDATE is still a forbidden default keyword even with readOnly disabled")
}

func TestCheckExtraForbiddenKeywordsAreAdditive(t *testing.T) {
	e := NewEngine()
	policy := DefaultPolicy()
	policy.ReadOnly = false
	policy.ExtraForbidden = []string{"MERGE"}

	err := e.Check("MERGE INTO t USING s ON 1=1", policy)
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "MERGE"))

	// defaults still apply even when extras are supplied
	err2 := e.Check("DELETE FROM t", policy)
	assert.Error(t, err2)
}

func TestCheckRejectsNonSelectUnderReadOnly(t *testing.T) {
	e := NewEngine()
	err := e.Check("CALL some_procedure()", DefaultPolicy())
	assert.Error(t, err)
}

func TestForbiddenSetIsCachedAcrossCalls(t *testing.T) {
	e := NewEngine()
	extras := []string{"MERGE"}

	first := e.forbiddenSet(extras)
	second := e.forbiddenSet(extras)
	assert.Len(t, e.setCache, 1, "identical extras should reuse one cache entry")
	assert.Equal(t, first, second)

	_ = e.forbiddenSet([]string{"OTHER"})
	assert.Len(t, e.setCache, 2, "distinct extras should populate a second cache entry")
}
