package backend

import (
	"context"

	"finedu/content"
	"finedu/errs"
	"finedu/store"
)

// Configured is satisfied by config.Guard.
type Configured interface {
	IsConfigured() bool
}

// Guarded rejects every call with errs.ErrNotConfigured, without touching the
// network, while the guard reports the endpoint as a placeholder.
type Guarded[T content.Resource, I any] struct {
	Guard Configured
	Next  store.Backend[T, I]
}

func Guard[T content.Resource, I any](g Configured, next store.Backend[T, I]) *Guarded[T, I] {
	return &Guarded[T, I]{Guard: g, Next: next}
}

func (g *Guarded[T, I]) ok() bool { return g.Guard != nil && g.Guard.IsConfigured() }

func (g *Guarded[T, I]) List(ctx context.Context, f content.Filter) ([]T, error) {
	if !g.ok() {
		return nil, errs.ErrNotConfigured
	}
	return g.Next.List(ctx, f)
}

func (g *Guarded[T, I]) Get(ctx context.Context, id string) (T, error) {
	if !g.ok() {
		var zero T
		return zero, errs.ErrNotConfigured
	}
	return g.Next.Get(ctx, id)
}

func (g *Guarded[T, I]) Create(ctx context.Context, in I) (T, error) {
	if !g.ok() {
		var zero T
		return zero, errs.ErrNotConfigured
	}
	return g.Next.Create(ctx, in)
}

func (g *Guarded[T, I]) Update(ctx context.Context, id string, patch content.Patch) (T, error) {
	if !g.ok() {
		var zero T
		return zero, errs.ErrNotConfigured
	}
	return g.Next.Update(ctx, id, patch)
}

func (g *Guarded[T, I]) Delete(ctx context.Context, id string) error {
	if !g.ok() {
		return errs.ErrNotConfigured
	}
	return g.Next.Delete(ctx, id)
}

func (g *Guarded[T, I]) IncrementViews(ctx context.Context, id string) error {
	if !g.ok() {
		return errs.ErrNotConfigured
	}
	vc, ok := g.Next.(store.ViewCounter)
	if !ok {
		return errs.Errorf(errs.Validation, "views", "", "view counter not supported")
	}
	return vc.IncrementViews(ctx, id)
}
