// internal/runner/registry.go
package runner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ScenarioFunc is the body of a scenario. It drives the storefront through
// the Execution's page objects and returns the first unrecoverable error.
type ScenarioFunc func(ctx context.Context, exec *Execution) error

// Scenario is a named, taggable suite entry.
type Scenario struct {
	Name string
	Tags []string
	Fn   ScenarioFunc
}

// Registry holds the scenarios a run can select from.
type Registry struct {
	mu        sync.Mutex
	scenarios map[string]Scenario
}

// NewRegistry creates an empty scenario registry.
func NewRegistry() *Registry {
	return &Registry{scenarios: make(map[string]Scenario)}
}

// Register adds a scenario. Names must be unique; a duplicate registration
// is a programming error and is rejected.
func (r *Registry) Register(scenario Scenario) error {
	if scenario.Name == "" {
		return fmt.Errorf("scenario name must not be empty")
	}
	if scenario.Fn == nil {
		return fmt.Errorf("scenario %q has no function", scenario.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.scenarios[scenario.Name]; exists {
		return fmt.Errorf("scenario %q is already registered", scenario.Name)
	}
	r.scenarios[scenario.Name] = scenario
	return nil
}

// MustRegister is Register for package-level wiring, panicking on conflict.
func (r *Registry) MustRegister(scenario Scenario) {
	if err := r.Register(scenario); err != nil {
		panic(err)
	}
}

// All returns every registered scenario sorted by name, so run order and
// report order are deterministic.
func (r *Registry) All() []Scenario {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Scenario, 0, len(r.scenarios))
	for _, scenario := range r.scenarios {
		out = append(out, scenario)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Filter returns the scenarios whose name or tags contain the given
// substring, case-insensitively. An empty filter selects everything.
func (r *Registry) Filter(filter string) []Scenario {
	all := r.All()
	if filter == "" {
		return all
	}

	needle := strings.ToLower(filter)
	var out []Scenario
	for _, scenario := range all {
		if strings.Contains(strings.ToLower(scenario.Name), needle) {
			out = append(out, scenario)
			continue
		}
		for _, tag := range scenario.Tags {
			if strings.Contains(strings.ToLower(tag), needle) {
				out = append(out, scenario)
				break
			}
		}
	}
	return out
}
