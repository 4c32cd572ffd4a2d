package entity

import "context"

type unitKey struct{}

type unit struct {
	owner Store
	view  Store
	hooks []func()
}

// Unit runs fn as one unit of work on s. Atomic calls made on s with the
// context handed to fn join the unit instead of committing on their own,
// and hooks registered with AfterCommit run once the whole unit commits.
func Unit(ctx context.Context, s Store, fn func(ctx context.Context, st Store) error) error {
	if st := Joined(ctx, s); st != nil {
		return fn(ctx, st)
	}

	u := &unit{owner: s}
	if err := s.Atomic(ctx, func(st Store) error {
		u.view = st
		return fn(context.WithValue(ctx, unitKey{}, u), st)
	}); err != nil {
		return err
	}
	for _, hook := range u.hooks {
		hook()
	}
	return nil
}

// Joined returns the view of the unit opened on s that ctx carries, or nil.
func Joined(ctx context.Context, s Store) Store {
	u, ok := ctx.Value(unitKey{}).(*unit)
	if !ok || u.owner != s {
		return nil
	}
	return u.view
}

// AfterCommit defers fn until the unit carried by ctx commits. Outside a
// unit fn runs right away. Hooks of a unit that rolls back never run.
func AfterCommit(ctx context.Context, fn func()) {
	if u, ok := ctx.Value(unitKey{}).(*unit); ok {
		u.hooks = append(u.hooks, fn)
		return
	}
	fn()
}
