package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeDocumentRejectsDuplicateToolByDefault(t *testing.T) {
	m := newMerger(DefaultMergeOptions())
	doc := rawDocument{Tools: []ToolSpec{{Name: "t", Source: "s", Statement: "SELECT 1 FROM SYSIBM.SYSDUMMY1"}}}

	errs1 := m.mergeDocument("a.yaml", doc)
	assert.Empty(t, errs1)

	errs2 := m.mergeDocument("b.yaml", doc)
	assert.NotEmpty(t, errs2)
	assert.Equal(t, "tools.t", errs2[0].Field)
}

func TestMergeDocumentAllowsDuplicateToolWhenOptedIn(t *testing.T) {
	opts := DefaultMergeOptions()
	opts.AllowDuplicateTools = true
	m := newMerger(opts)
	doc1 := rawDocument{Tools: []ToolSpec{{Name: "t", Source: "s1", Statement: "SELECT 1 FROM SYSIBM.SYSDUMMY1"}}}
	doc2 := rawDocument{Tools: []ToolSpec{{Name: "t", Source: "s2", Statement: "SELECT 2 FROM SYSIBM.SYSDUMMY1"}}}

	assert.Empty(t, m.mergeDocument("a.yaml", doc1))
	assert.Empty(t, m.mergeDocument("b.yaml", doc2))
	assert.Equal(t, "s2", m.cfg.Tools["t"].Source)
	assert.NotEmpty(t, m.warnings)
}

func TestMergeDocumentConcatsToolsetArraysWhenEnabled(t *testing.T) {
	opts := DefaultMergeOptions()
	opts.MergeArrays = true
	m := newMerger(opts)
	doc1 := rawDocument{Toolsets: []ToolsetSpec{{Name: "g", Tools: []string{"a"}}}}
	doc2 := rawDocument{Toolsets: []ToolsetSpec{{Name: "g", Tools: []string{"b"}}}}

	m.mergeDocument("a.yaml", doc1)
	m.mergeDocument("b.yaml", doc2)

	assert.ElementsMatch(t, []string{"a", "b"}, m.cfg.Toolsets["g"].Tools)
}

func TestMergeDocumentReplacesToolsetWhenArrayMergeDisabled(t *testing.T) {
	opts := DefaultMergeOptions()
	opts.MergeArrays = false
	m := newMerger(opts)
	doc1 := rawDocument{Toolsets: []ToolsetSpec{{Name: "g", Tools: []string{"a"}}}}
	doc2 := rawDocument{Toolsets: []ToolsetSpec{{Name: "g", Tools: []string{"b"}}}}

	m.mergeDocument("a.yaml", doc1)
	m.mergeDocument("b.yaml", doc2)

	assert.Equal(t, []string{"b"}, m.cfg.Toolsets["g"].Tools)
}

func TestMergeDocumentRejectsDuplicateSourceByDefault(t *testing.T) {
	m := newMerger(DefaultMergeOptions())
	doc := rawDocument{Sources: []SourceSpec{{Name: "s", Host: "h"}}}

	assert.Empty(t, m.mergeDocument("a.yaml", doc))
	errs2 := m.mergeDocument("b.yaml", doc)
	assert.NotEmpty(t, errs2)
}

func TestStatsReflectsMergedCounts(t *testing.T) {
	m := newMerger(DefaultMergeOptions())
	doc := rawDocument{
		Sources:  []SourceSpec{{Name: "s"}},
		Tools:    []ToolSpec{{Name: "t", Source: "s", Statement: "SELECT 1 FROM SYSIBM.SYSDUMMY1"}},
		Toolsets: []ToolsetSpec{{Name: "g", Tools: []string{"t"}}},
	}
	m.mergeDocument("a.yaml", doc)

	stats := m.stats(1, 1)
	assert.Equal(t, 1, stats.SourcesTotal)
	assert.Equal(t, 1, stats.ToolsTotal)
	assert.Equal(t, 1, stats.ToolsetsTotal)
}
