package system

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// PowerCfg implements PowerPlans with powercfg.exe.
type PowerCfg struct {
	runner Runner
}

// NewPowerCfg creates a PowerCfg.
func NewPowerCfg(r Runner) *PowerCfg {
	return &PowerCfg{runner: r}
}

// schemeLine matches "<guid>  (<name>)" in a scheme line. The label
// before the GUID is localized and not matched.
var schemeLine = regexp.MustCompile(`(?i)([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})\s*(?:\(([^)]*)\))?`)

// Active returns the active power scheme.
func (p *PowerCfg) Active(ctx context.Context) (PowerPlan, error) {
	res, err := p.runner.Run(ctx, "powercfg", "/getactivescheme")
	if err != nil {
		return PowerPlan{}, err
	}
	if res.ExitCode != 0 {
		return PowerPlan{}, toolError("powercfg", "/getactivescheme", res)
	}
	m := schemeLine.FindStringSubmatch(res.Stdout)
	if m == nil {
		return PowerPlan{}, fmt.Errorf("unexpected powercfg output: %s", strings.TrimSpace(res.Stdout))
	}
	return PowerPlan{GUID: strings.ToLower(m[1]), Name: strings.TrimSpace(m[2])}, nil
}

// SetActive activates the scheme with the given GUID.
func (p *PowerCfg) SetActive(ctx context.Context, guid string) error {
	res, err := p.runner.Run(ctx, "powercfg", "/setactive", guid)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		plans, lerr := p.List(ctx)
		if lerr != nil {
			return fmt.Errorf("%w (listing plans: %v)", toolError("powercfg", "/setactive "+guid, res), lerr)
		}
		for _, plan := range plans {
			if strings.EqualFold(plan.GUID, guid) {
				return toolError("powercfg", "/setactive "+guid, res)
			}
		}
		return fmt.Errorf("%s: %w", guid, ErrPlanNotFound)
	}
	return nil
}

// List returns every installed power scheme.
func (p *PowerCfg) List(ctx context.Context) ([]PowerPlan, error) {
	res, err := p.runner.Run(ctx, "powercfg", "/list")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, toolError("powercfg", "/list", res)
	}
	var plans []PowerPlan
	for _, m := range schemeLine.FindAllStringSubmatch(res.Stdout, -1) {
		plans = append(plans, PowerPlan{GUID: strings.ToLower(m[1]), Name: strings.TrimSpace(m[2])})
	}
	return plans, nil
}
