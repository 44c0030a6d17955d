package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvSampler2Sampler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, arg string
		want      string
	}{
		{"always_on", "", "AlwaysOnSampler"},
		{"always_off", "", "AlwaysOffSampler"},
		{"traceidratio", "0.5", "TraceIDRatioBased{0.5}"},
		{"traceidratio", "garbage", "AlwaysOnSampler"},
		{"parentbased_always_on", "", "ParentBased{root:AlwaysOnSampler"},
		{"parentbased_always_off", "", "ParentBased{root:AlwaysOffSampler"},
		{"parentbased_traceidratio", "0.1", "ParentBased{root:TraceIDRatioBased{0.1}"},
		{"unknown", "", "ParentBased{root:AlwaysOnSampler"},
	}

	for _, tt := range tests {
		assert.Contains(t, envSampler2Sampler(tt.name, tt.arg).Description(), tt.want, tt.name+" "+tt.arg)
	}
}

func TestSelectSampler_UsesRatio(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SampleRatio = 0.25

	t.Setenv(envTracesSampler, "")

	assert.Contains(t, selectSampler(cfg).Description(), "TraceIDRatioBased{0.25}")

	cfg.SampleRatio = 0
	assert.Contains(t, selectSampler(cfg).Description(), "root:AlwaysOnSampler")
}
