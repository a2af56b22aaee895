// internal/scenarios/scenarios_test.go
package scenarios

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trolleyhq/trolley/internal/runner"
)

func TestRegisterAddsEveryScenario(t *testing.T) {
	reg := runner.NewRegistry()
	require.NoError(t, Register(reg))

	all := reg.All()
	assert.Len(t, all, len(All()))
	for _, scenario := range all {
		assert.NotEmpty(t, scenario.Name)
		assert.NotNil(t, scenario.Fn)
		assert.NotEmpty(t, scenario.Tags, "scenario %q should carry tags for filtering", scenario.Name)
	}
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := runner.NewRegistry()
	require.NoError(t, Register(reg))
	assert.Error(t, Register(reg), "shipped names are already taken")
}

func TestShippedScenarioNamesAreStable(t *testing.T) {
	// CI filters and stored run history key on these names.
	var names []string
	for _, scenario := range All() {
		names = append(names, scenario.Name)
	}
	assert.Equal(t, []string{
		"browse and add to cart",
		"checkout in a fresh tab",
		"newsletter modal interruption",
		"flaky cart route absorption",
		"cart accumulation across products",
		"empty cart guard",
	}, names)
}
