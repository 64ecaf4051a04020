package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParameterSpecIsOptional(t *testing.T) {
	cases := []struct {
		name     string
		p        ParameterSpec
		optional bool
	}{
		{"required flag set", ParameterSpec{Required: true}, false},
		{"not required, no default", ParameterSpec{Required: false}, true},
		{"not required, has default", ParameterSpec{Required: false, Default: 1}, false},
		{"required with default", ParameterSpec{Required: true, Default: 1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.optional, tc.p.IsOptional())
			assert.Equal(t, !tc.optional, tc.p.EffectivelyRequired())
		})
	}
}

func TestSourceSpecEffectivePort(t *testing.T) {
	assert.Equal(t, DefaultGatewayPort, SourceSpec{}.EffectivePort())
	assert.Equal(t, 9999, SourceSpec{Port: 9999}.EffectivePort())
}

func TestDurationRoundTrip(t *testing.T) {
	var out Duration
	assert.NoError(t, out.UnmarshalJSON([]byte(`"30s"`)))
	assert.Equal(t, float64(30), out.Duration().Seconds())

	data, err := out.MarshalJSON()
	assert.NoError(t, err)
	assert.Equal(t, `"30s"`, string(data))
}

func TestDurationUnmarshalInvalid(t *testing.T) {
	var out Duration
	assert.Error(t, out.UnmarshalJSON([]byte(`"not-a-duration"`)))
}
