package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateParameterSpecArrayRequiresItemType(t *testing.T) {
	errs := validateParameterSpec("t", ParameterSpec{Name: "p", Type: TypeArray})
	assert.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Field, "itemType")
}

func TestValidateParameterSpecItemTypeOnlyOnArray(t *testing.T) {
	errs := validateParameterSpec("t", ParameterSpec{Name: "p", Type: TypeString, ItemType: TypeString})
	assert.NotEmpty(t, errs)
}

func TestValidateParameterSpecPatternOnlyOnString(t *testing.T) {
	errs := validateParameterSpec("t", ParameterSpec{Name: "p", Type: TypeInteger, Pattern: "^[0-9]+$"})
	assert.NotEmpty(t, errs)
}

func TestValidateParameterSpecEnumForbiddenOnBoolean(t *testing.T) {
	errs := validateParameterSpec("t", ParameterSpec{Name: "p", Type: TypeBoolean, Enum: []interface{}{true, false}})
	assert.NotEmpty(t, errs)
}

func TestValidateParameterSpecValid(t *testing.T) {
	errs := validateParameterSpec("t", ParameterSpec{Name: "p", Type: TypeArray, ItemType: TypeString})
	assert.Empty(t, errs)
}

func TestPlaceholderNamesIgnoresLiteralsAndComments(t *testing.T) {
	stmt := "SELECT :a FROM t WHERE x = ':not_a_param' -- :also_not\n AND y = /* :nope */ :b"
	names := placeholderNames(stmt)
	assert.ElementsMatch(t, []string{"a", "b"}, names)
}

func TestValidateToolSpecUnknownPlaceholder(t *testing.T) {
	errs := validateToolSpec("t", ToolSpec{
		Source:    "s",
		Statement: "SELECT :missing FROM SYSIBM.SYSDUMMY1",
	})
	found := false
	for _, e := range errs {
		if e.Field == "tools.t.statement" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateToolSpecMaxDisplayRowsRange(t *testing.T) {
	errs := validateToolSpec("t", ToolSpec{Source: "s", Statement: "SELECT 1 FROM SYSIBM.SYSDUMMY1", MaxDisplayRows: 5000})
	assert.NotEmpty(t, errs)
}

func TestConfigValidateReferencesDetectsMissingSource(t *testing.T) {
	cfg := NewEmptyConfig()
	cfg.Tools["t1"] = ToolSpec{Name: "t1", Source: "missing", Statement: "SELECT 1 FROM SYSIBM.SYSDUMMY1"}
	errs := cfg.ValidateReferences()
	assert.NotEmpty(t, errs)
}

func TestConfigValidateReferencesDetectsMissingToolInToolset(t *testing.T) {
	cfg := NewEmptyConfig()
	cfg.Toolsets["g"] = ToolsetSpec{Name: "g", Tools: []string{"ghost"}}
	errs := cfg.ValidateReferences()
	assert.NotEmpty(t, errs)
}

func TestConfigValidateReferencesEmptyConfigRejected(t *testing.T) {
	cfg := NewEmptyConfig()
	errs := cfg.ValidateReferences()
	assert.NotEmpty(t, errs)
}

func TestConfigValidatePasses(t *testing.T) {
	cfg := NewEmptyConfig()
	cfg.Sources["s"] = SourceSpec{Name: "s", Host: "h", User: "u", Password: "p"}
	cfg.Tools["t"] = ToolSpec{
		Name:      "t",
		Source:    "s",
		Statement: "SELECT 1 AS X FROM SYSIBM.SYSDUMMY1",
		Enabled:   true,
	}
	assert.NoError(t, cfg.Validate())
}
