package binder

import (
	"fmt"
	"strings"
	"testing"

	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/config"
	"pgregory.net/rapid"
)

// TestBindArrayExpansionProperties exercises rule 2 (array expansion) across
// arbitrary array lengths: the bound SQL must carry exactly one "?" per
// element and the positional values must reproduce the input in order,
// regardless of how many elements were supplied.
func TestBindArrayExpansionProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 20).Draw(rt, "n")
		ids := make([]interface{}, n)
		for i := range ids {
			ids[i] = float64(rapid.IntRange(-1000, 1000).Draw(rt, fmt.Sprintf("id%d", i)))
		}

		params := []config.ParameterSpec{{Name: "ids", Type: config.TypeArray, ItemType: config.TypeInteger, Required: true}}
		res, err := Bind("SELECT * FROM t WHERE id IN (:ids)", params, map[string]interface{}{"ids": ids})
		if err != nil {
			rt.Fatalf("Bind returned error for valid input: %v", err)
		}

		if got := strings.Count(res.BoundSQL, "?"); got != n {
			rt.Fatalf("expected %d placeholders, got %d in %q", n, got, res.BoundSQL)
		}
		if len(res.PositionalValues) != n {
			rt.Fatalf("expected %d positional values, got %d", n, len(res.PositionalValues))
		}
		for i, v := range ids {
			want := int64(v.(float64))
			if res.PositionalValues[i] != want {
				rt.Fatalf("position %d: want %v, got %v", i, want, res.PositionalValues[i])
			}
		}
	})
}

// TestBindPositionalConsumptionOrderIsStable draws a random number of
// string-typed declared parameters and confirms bare "?" placeholders
// always consume them in declared order (rule 4), independent of how many
// parameters are declared.
func TestBindPositionalConsumptionOrderIsStable(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "n")
		params := make([]config.ParameterSpec, n)
		args := make(map[string]interface{}, n)
		var placeholders []string
		var want []interface{}
		for i := 0; i < n; i++ {
			name := fmt.Sprintf("p%d", i)
			val := rapid.StringMatching(`[a-z]{1,6}`).Draw(rt, name+"_val")
			params[i] = config.ParameterSpec{Name: name, Type: config.TypeString, Required: true}
			args[name] = val
			placeholders = append(placeholders, "?")
			want = append(want, val)
		}

		stmt := "SELECT * FROM t WHERE x IN (" + strings.Join(placeholders, ", ") + ")"
		res, err := Bind(stmt, params, args)
		if err != nil {
			rt.Fatalf("Bind returned error for valid input: %v", err)
		}
		if len(res.PositionalValues) != n {
			rt.Fatalf("expected %d positional values, got %d", n, len(res.PositionalValues))
		}
		for i := range want {
			if res.PositionalValues[i] != want[i] {
				rt.Fatalf("position %d: want %v, got %v", i, want[i], res.PositionalValues[i])
			}
		}
	})
}
