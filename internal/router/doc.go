// Package router implements the learned routing policy: a tabular,
// single-step Q-learning router that maps free-text task descriptions to one
// of a fixed, ordered set of route labels.
//
// A Router owns all learner state (Q-table, exploration schedule, decision
// cache, replay buffer) behind one mutex. Persistence is pure data: Export
// returns a Model and Import replaces state from one, all or nothing. File
// I/O lives in the snapshot package, which implements Snapshotter.
//
//	r, err := router.New(router.DefaultConfig(), router.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	d := r.Route(ctx, "fix login bug", false)
//	r.Update(ctx, "fix login bug", d.Route, 1.0)
package router
