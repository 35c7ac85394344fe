package router_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/router"
)

func TestDefaultGate(t *testing.T) {
	ctx := context.Background()
	gate, err := router.NewGate(ctx)
	gt.NoError(t, err)

	testCases := []struct {
		name  string
		input router.GateInput
		allow bool
	}{
		{
			name:  "offered read",
			input: router.GateInput{Intent: model.IntentRoadmapQA, Tool: "search_roadmap", Offered: true},
			allow: true,
		},
		{
			name:  "mutation for customer management",
			input: router.GateInput{Intent: model.IntentCustomerManagement, Tool: "create_customer", Offered: true, Mutating: true},
			allow: true,
		},
		{
			name:  "mutation for roadmap question",
			input: router.GateInput{Intent: model.IntentRoadmapQA, Tool: "delete_customer", Offered: true, Mutating: true},
			allow: false,
		},
		{
			name:  "mutation for impact analysis",
			input: router.GateInput{Intent: model.IntentImpactAnalysis, Tool: "update_customer", Offered: true, Mutating: true},
			allow: false,
		},
		{
			name:  "not offered",
			input: router.GateInput{Intent: model.IntentRoadmapQA, Tool: "assess_impact"},
			allow: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := gate.Check(ctx, tc.input)
			gt.NoError(t, err)
			gt.Equal(t, d.Allow, tc.allow)
			if !tc.allow {
				gt.NotEqual(t, d.Reason, "")
			}
		})
	}
}

func TestGateUndefinedResultDenies(t *testing.T) {
	ctx := context.Background()
	gate, err := router.NewGateFromModules(ctx, map[string]string{
		"empty.rego": "package evergreen.gate\n\nunused := true\n",
	})
	gt.NoError(t, err)

	d, err := gate.Check(ctx, router.GateInput{Intent: model.IntentRoadmapQA, Tool: "search_roadmap", Offered: true})
	gt.NoError(t, err)
	gt.False(t, d.Allow)
}

func TestLoadGate(t *testing.T) {
	dir := t.TempDir()
	policy := `package evergreen.gate

default allow := false

allow if {
	input.offered
	input.tool != "get_roadmap_stats"
}

reason := "stats are disabled" if input.tool == "get_roadmap_stats"
`
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "custom.rego"), []byte(policy), 0o600))

	ctx := context.Background()
	gate, err := router.LoadGate(ctx, dir)
	gt.NoError(t, err)

	d, err := gate.Check(ctx, router.GateInput{Intent: model.IntentRoadmapQA, Tool: "get_roadmap_stats", Offered: true})
	gt.NoError(t, err)
	gt.False(t, d.Allow)
	gt.Equal(t, d.Reason, "stats are disabled")

	_, err = router.LoadGate(ctx, t.TempDir())
	gt.Error(t, err)
}
