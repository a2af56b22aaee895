// internal/browser/resolve/resolver.go

// Package resolve picks the first workable UI affordance out of an ordered
// list of candidates. Storefront themes render the same logical control in
// different ways, so callers list every known variant and let the resolver
// find one that is present and clickable.
package resolve

import (
	"context"
	"fmt"
	"strings"

	"github.com/trolleyhq/trolley/internal/retry"
)

// Candidate is one possible way to perform an action.
type Candidate struct {
	// Name identifies the candidate in logs and failure messages.
	Name string
	// Selector gates the attempt; the candidate is only tried while at
	// least one matching element is visible.
	Selector string
	// Do performs the action once the gate passes.
	Do func(ctx context.Context) error
}

// Prober counts visible matches for a selector. *browser.Session satisfies
// it.
type Prober interface {
	CountVisible(ctx context.Context, selector string) (int, error)
}

// First attempts the candidates in order, cycling until one succeeds or the
// shared budget in opts runs out. It returns the name of the winning
// candidate. Success is only ever reported after a candidate's Do returned
// nil; a terminal error enumerates the last observed state of every
// candidate.
func First(ctx context.Context, probe Prober, action string, candidates []Candidate, opts retry.Options) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("%s: no candidates to resolve", action)
	}

	var winner string
	cond := func(ctx context.Context) error {
		states := make([]string, 0, len(candidates))
		for _, c := range candidates {
			n, err := probe.CountVisible(ctx, c.Selector)
			if err != nil {
				states = append(states, fmt.Sprintf("%s: probe failed: %v", c.Name, err))
				continue
			}
			if n == 0 {
				states = append(states, fmt.Sprintf("%s: not visible", c.Name))
				continue
			}
			if err := c.Do(ctx); err != nil {
				states = append(states, fmt.Sprintf("%s: %v", c.Name, err))
				continue
			}
			winner = c.Name
			return nil
		}
		return fmt.Errorf("no candidate succeeded (%s)", strings.Join(states, "; "))
	}

	if err := retry.Poll(ctx, action, cond, opts); err != nil {
		return "", err
	}
	return winner, nil
}
