// Package activity: transitive closure over the activity forest
package activity

import (
	"context"
	"org-directory/internal/model"
)

// Tree: the two lookups closure expansion needs; *store.Reader satisfies it
type Tree interface {
	ActivityExists(ctx context.Context, id int64) (bool, error)
	ChildActivityIDs(ctx context.Context, parents []int64) ([]int64, error)
}

// Observer receives the size of each computed closure; nil is allowed.
type Observer func(size int)

type Resolver struct {
	observe Observer
}

func NewResolver(obs Observer) *Resolver { return &Resolver{observe: obs} }

// Closure: id plus every descendant of id; empty when id does not exist
// Frontier expansion, one child lookup per level issued after the previous one returns.
// Termination is by empty frontier only; the visited set also stops on a corrupt parent cycle.
func (r *Resolver) Closure(ctx context.Context, t Tree, id int64) (model.IDSet, error) {
	ok, err := t.ActivityExists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		r.report(0)
		return model.NewIDSet(), nil
	}
	seen := model.NewIDSet(id)
	frontier := []int64{id}
	for len(frontier) > 0 {
		children, err := t.ChildActivityIDs(ctx, frontier)
		if err != nil {
			return nil, err
		}
		var next []int64
		for _, c := range children {
			if seen.Has(c) {
				continue
			}
			seen.Add(c)
			next = append(next, c)
		}
		frontier = next
	}
	r.report(seen.Len())
	return seen, nil
}

func (r *Resolver) report(n int) {
	if r != nil && r.observe != nil {
		r.observe(n)
	}
}
