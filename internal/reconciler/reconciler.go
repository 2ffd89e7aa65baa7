package reconciler

import (
	"context"
	"sort"
	"sync"
	"time"

	"echopulse/internal/agent"
	"echopulse/internal/containerizer"
	"echopulse/pkg/logging"
)

// Reconciler converges the repository onto a runtime inventory.
//
// Every container in the inventory is upserted as an active agent, and every
// previously active agent missing from it is deactivated. Records are never
// deleted. When the repository implements agent.Transactor the whole pass is
// applied atomically.
//
// An inactive record is reactivated only when its container reappears, that
// is when it was missing from the last committed inventory. Agents retired
// while their container is still listed stay in the memory garden. Before
// the first committed cycle nothing counts as a reappearance.
type Reconciler struct {
	repo agent.Repository
	now  func() time.Time

	mu sync.Mutex
	// seen holds the ids of the last committed inventory; nil until then.
	seen map[string]struct{}
}

// NewReconciler creates a reconciler writing to repo.
func NewReconciler(repo agent.Repository) *Reconciler {
	return &Reconciler{repo: repo, now: time.Now}
}

// Reconcile applies one inventory. On error no write of this pass is
// committed for transactional repositories.
func (r *Reconciler) Reconcile(ctx context.Context, inventory []containerizer.Container) (Result, error) {
	now := r.now().UTC()
	containers := dedupe(inventory)

	r.mu.Lock()
	defer r.mu.Unlock()

	var upserted, deactivated, retained []string
	current := make(map[string]struct{}, len(containers))
	apply := func(repo agent.Repository) error {
		upserted, deactivated, retained = nil, nil, nil

		prior, err := agent.ActiveIDs(ctx, repo)
		if err != nil {
			return err
		}
		retired, err := r.retiredAndStillListed(ctx, repo)
		if err != nil {
			return err
		}

		for _, c := range containers {
			current[c.ID] = struct{}{}
			if _, ok := retired[c.ID]; ok {
				retained = append(retained, c.ID)
				continue
			}
			if err := repo.Upsert(ctx, agent.Observe(c.ID, c.Name, c.Status, now)); err != nil {
				return err
			}
			upserted = append(upserted, c.ID)
		}

		for id := range prior {
			if _, ok := current[id]; ok {
				continue
			}
			if err := repo.Deactivate(ctx, id, now); err != nil {
				return err
			}
			deactivated = append(deactivated, id)
		}
		return nil
	}

	var err error
	if tx, ok := r.repo.(agent.Transactor); ok {
		err = tx.InTx(ctx, apply)
	} else {
		err = apply(r.repo)
	}

	result := Result{StartedAt: now, FinishedAt: r.now().UTC()}
	if err != nil {
		result.Err = err
		return result, err
	}

	r.seen = current

	sort.Strings(upserted)
	sort.Strings(deactivated)
	result.Upserted = upserted
	result.Deactivated = deactivated

	if len(retained) > 0 {
		logging.Debug("Reconciler", "Left %d retired agents in the memory garden", len(retained))
	}

	for _, id := range deactivated {
		logging.Info("Reconciler", "Agent %s retired to the memory garden", logging.ShortID(id))
	}
	logging.Debug("Reconciler", "Reconciled %d containers, %d deactivated", len(upserted), len(deactivated))
	return result, nil
}

// retiredAndStillListed returns the inactive ids that were present in the
// last committed inventory. Must be called with r.mu held.
func (r *Reconciler) retiredAndStillListed(ctx context.Context, repo agent.Repository) (map[string]struct{}, error) {
	inactive, err := repo.ListInactive(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(inactive))
	for _, a := range inactive {
		if _, seen := r.seen[a.ID]; seen || r.seen == nil {
			out[a.ID] = struct{}{}
		}
	}
	return out, nil
}

// dedupe keeps the last entry for each id, in first-seen order.
func dedupe(inventory []containerizer.Container) []containerizer.Container {
	index := make(map[string]int, len(inventory))
	out := make([]containerizer.Container, 0, len(inventory))
	for _, c := range inventory {
		if c.ID == "" {
			continue
		}
		if i, ok := index[c.ID]; ok {
			out[i] = c
			continue
		}
		index[c.ID] = len(out)
		out = append(out, c)
	}
	return out
}
