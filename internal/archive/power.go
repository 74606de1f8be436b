package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/tweakguard/internal/ledger"
	"github.com/blackwell-systems/tweakguard/internal/system"
)

// PowerArchiver records and re-activates the active power plan.
type PowerArchiver struct {
	power    system.PowerPlans
	fallback string
	log      zerolog.Logger
}

// Fallback returns the plan activated when a recorded plan is missing.
func (a *PowerArchiver) Fallback() string {
	return a.fallback
}

// Capture records the active plan.
func (a *PowerArchiver) Capture(ctx context.Context) (*ledger.PowerEntry, error) {
	plan, err := a.power.Active(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query active power plan: %w", err)
	}
	a.log.Info().Str("guid", plan.GUID).Str("name", plan.Name).Msg("power plan recorded")
	return &ledger.PowerEntry{
		GUID:       plan.GUID,
		Name:       plan.Name,
		CapturedAt: time.Now().UTC().Truncate(time.Second),
	}, nil
}

// Restore activates the recorded plan. If that plan no longer exists the
// configured fallback plan is activated and the outcome is approximate.
func (a *PowerArchiver) Restore(ctx context.Context, e *ledger.PowerEntry) (Outcome, error) {
	if cur, err := a.power.Active(ctx); err == nil && strings.EqualFold(cur.GUID, e.GUID) {
		return Outcome{Status: StatusOK, Detail: "already active"}, nil
	}

	err := a.power.SetActive(ctx, e.GUID)
	if err == nil {
		a.log.Info().Str("guid", e.GUID).Msg("power plan restored")
		return ok(), nil
	}
	if !errors.Is(err, system.ErrPlanNotFound) || a.fallback == "" || strings.EqualFold(a.fallback, e.GUID) {
		return Outcome{Status: StatusFailed}, fmt.Errorf("failed to activate power plan %s: %w", e.GUID, err)
	}

	if ferr := a.power.SetActive(ctx, a.fallback); ferr != nil {
		return Outcome{Status: StatusFailed}, fmt.Errorf("failed to activate power plan %s: %w",
			e.GUID, errors.Join(err, fmt.Errorf("fallback %s: %w", a.fallback, ferr)))
	}
	a.log.Warn().Str("guid", e.GUID).Str("fallback", a.fallback).Msg("recorded power plan missing, activated fallback")
	return Outcome{
		Status: StatusApproximate,
		Detail: fmt.Sprintf("plan %s no longer exists; activated fallback plan %s", e.GUID, a.fallback),
	}, nil
}
