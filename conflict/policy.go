package conflict

import (
	"fmt"
	"log/slog"

	"github.com/driftsync/driftsync/errors"
	"github.com/driftsync/driftsync/logging"
	"github.com/driftsync/driftsync/merge"
)

// DeleteRule configures how delete-vs-update conflicts are settled.
type DeleteRule string

const (
	// DeleteRuleKeepSurvivingEdit keeps the side that still has a value.
	DeleteRuleKeepSurvivingEdit DeleteRule = "keep_surviving_edit"

	// DeleteRuleHonorDelete lets the deletion win.
	DeleteRuleHonorDelete DeleteRule = "honor_delete"
)

// SmartMergeFunc is a per-collection custom merge. Returning an error
// makes the policy fall back to the structural three-way merge.
type SmartMergeFunc func(ancestor, local, remote interface{}) (interface{}, error)

// PolicyConfig holds the tunable knobs of the resolution policy.
type PolicyConfig struct {
	// DefaultStrategy applies when no other selection rule matches.
	DefaultStrategy Strategy `yaml:"default_strategy" json:"default_strategy"`

	// AutoResolveThreshold is the highest complexity score that still
	// qualifies for cheap automatic resolution.
	AutoResolveThreshold int `yaml:"auto_resolve_threshold" json:"auto_resolve_threshold"`

	// DeleteRule settles delete-vs-update conflicts.
	DeleteRule DeleteRule `yaml:"delete_rule" json:"delete_rule"`

	// MaxResolutionAttempts caps failed automatic resolutions before a
	// conflict is permanently parked for manual handling.
	MaxResolutionAttempts int `yaml:"max_resolution_attempts" json:"max_resolution_attempts"`

	// Collections maps collection names to a fixed strategy override.
	Collections map[string]Strategy `yaml:"collections" json:"collections"`
}

// DefaultPolicyConfig returns the documented defaults: structural merge
// as the default strategy, auto-resolve threshold 30, surviving edits
// win over deletes, at most 3 automatic attempts per conflict.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		DefaultStrategy:       StrategyThreeWayMerge,
		AutoResolveThreshold:  30,
		DeleteRule:            DeleteRuleKeepSurvivingEdit,
		MaxResolutionAttempts: 3,
	}
}

func (c *PolicyConfig) setDefaults() {
	if c.DefaultStrategy == "" {
		c.DefaultStrategy = StrategyThreeWayMerge
	}
	if c.AutoResolveThreshold == 0 {
		c.AutoResolveThreshold = 30
	}
	if c.DeleteRule == "" {
		c.DeleteRule = DeleteRuleKeepSurvivingEdit
	}
	if c.MaxResolutionAttempts == 0 {
		c.MaxResolutionAttempts = 3
	}
}

// Outcome is the result of running the policy over a conflict.
type Outcome struct {
	// Resolved is true when a value (or deletion) was chosen
	// automatically. Manual is true when the conflict must be parked
	// for an external decision; the two are mutually exclusive.
	Resolved bool
	Manual   bool

	// Value is the resolution value. Deleted marks a resolution whose
	// outcome is "the entity does not exist".
	Value   interface{}
	Deleted bool

	// Strategy is the strategy that produced this outcome.
	Strategy Strategy
}

// Policy selects and runs merge strategies for classified conflicts.
type Policy struct {
	cfg    PolicyConfig
	engine *merge.Engine
	smart  map[string]SmartMergeFunc
	logger *logging.Logger
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

// WithSmartMerge registers a custom merge function for a collection.
func WithSmartMerge(collection string, fn SmartMergeFunc) PolicyOption {
	return func(p *Policy) { p.smart[collection] = fn }
}

// WithPolicyLogger sets the policy's logger.
func WithPolicyLogger(l *logging.Logger) PolicyOption {
	return func(p *Policy) { p.logger = l }
}

// NewPolicy constructs a resolution policy around a merge engine.
func NewPolicy(cfg PolicyConfig, engine *merge.Engine, opts ...PolicyOption) *Policy {
	cfg.setDefaults()
	p := &Policy{
		cfg:    cfg,
		engine: engine,
		smart:  make(map[string]SmartMergeFunc),
		logger: logging.WithComponent("policy"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Resolve picks a strategy for the conflict and runs it. Automatic
// strategies that fail downgrade the conflict to manual resolution,
// bounded by the configured attempt cap; Manual itself never fails.
// On a resolved outcome the conflict record is updated in place.
func (p *Policy) Resolve(c *Conflict) Outcome {
	strategy, direct := p.selectStrategy(c)
	if direct != nil {
		p.commit(c, *direct)
		return *direct
	}

	if strategy == StrategyManual {
		c.Strategy = StrategyManual
		p.logger.Debug("conflict routed to manual resolution",
			slog.String("collection", c.Collection),
			slog.String("entity_id", c.EntityID),
			slog.Int("complexity", c.Complexity))
		return Outcome{Manual: true, Strategy: StrategyManual}
	}

	out, err := p.apply(strategy, c)
	if err != nil {
		c.ResolutionAttempts++
		p.logger.Warn("automatic resolution failed, downgrading to manual",
			slog.String("collection", c.Collection),
			slog.String("entity_id", c.EntityID),
			slog.String("strategy", string(strategy)),
			slog.Int("attempts", c.ResolutionAttempts),
			slog.String("error", err.Error()))
		c.Strategy = StrategyManual
		return Outcome{Manual: true, Strategy: StrategyManual}
	}

	p.commit(c, out)
	return out
}

// Exhausted reports whether the conflict has used up its automatic
// resolution attempts and must stay manual.
func (p *Policy) Exhausted(c *Conflict) bool {
	return c.ResolutionAttempts >= p.cfg.MaxResolutionAttempts
}

func (p *Policy) commit(c *Conflict, out Outcome) {
	if !out.Resolved {
		return
	}
	c.Resolved = true
	c.Resolution = out.Value
	c.Strategy = out.Strategy
}

// selectStrategy implements the first-match-wins selection order:
// per-collection override, delete special rules, the complexity
// threshold, then the configured default. Outcomes that need no merge
// work (delete rules) are returned directly.
func (p *Policy) selectStrategy(c *Conflict) (Strategy, *Outcome) {
	if s, ok := p.cfg.Collections[c.Collection]; ok {
		return s, nil
	}

	switch c.Category {
	case CategoryDeleteDelete:
		// Both sides agree the entity is gone.
		return "", &Outcome{Resolved: true, Deleted: true, Strategy: StrategyThreeWayMerge}

	case CategoryDeleteUpdate:
		if p.cfg.DeleteRule == DeleteRuleHonorDelete {
			return "", &Outcome{Resolved: true, Deleted: true, Strategy: StrategyThreeWayMerge}
		}
		surviving := c.Local
		if surviving == nil {
			surviving = c.Remote
		}
		return "", &Outcome{Resolved: true, Value: p.engine.Clone(surviving), Strategy: StrategyThreeWayMerge}
	}

	if c.Complexity <= p.cfg.AutoResolveThreshold {
		if c.Category == CategoryUpdateUpdate && isScalar(c.Local) && isScalar(c.Remote) {
			return StrategyLastWriteWins, nil
		}
		if _, ok := p.smart[c.Collection]; ok {
			return StrategySmartMerge, nil
		}
		return StrategyThreeWayMerge, nil
	}

	return p.cfg.DefaultStrategy, nil
}

// apply runs a single automatic strategy. An error means the strategy
// could not produce a complete resolution.
func (p *Policy) apply(strategy Strategy, c *Conflict) (Outcome, error) {
	switch strategy {
	case StrategyLastWriteWins:
		value := p.engine.LastWriteWins(c.Ancestor, c.Local, c.Remote, c.LocalTS, c.RemoteTS)
		return Outcome{Resolved: true, Value: value, Strategy: StrategyLastWriteWins}, nil

	case StrategySmartMerge:
		if fn, ok := p.smart[c.Collection]; ok {
			value, err := fn(c.Ancestor, c.Local, c.Remote)
			if err == nil {
				return Outcome{Resolved: true, Value: value, Strategy: StrategySmartMerge}, nil
			}
			p.logger.Debug("smart merge failed, falling back to structural merge",
				slog.String("collection", c.Collection),
				slog.String("error", err.Error()))
		}
		out, err := p.structural(c)
		if err != nil {
			return Outcome{}, err
		}
		out.Strategy = StrategySmartMerge
		return out, nil

	case StrategyThreeWayMerge, StrategyRecursiveMerge:
		out, err := p.structural(c)
		if err != nil {
			return Outcome{}, err
		}
		out.Strategy = strategy
		return out, nil

	default:
		return Outcome{}, errors.NewResolutionError(errors.OpResolve,
			fmt.Errorf("unknown strategy %q", strategy))
	}
}

func (p *Policy) structural(c *Conflict) (Outcome, error) {
	res := p.engine.ThreeWayMerge(c.Ancestor, c.Local, c.Remote)
	if res.Err != "" {
		return Outcome{}, errors.NewResolutionError(errors.OpResolve, fmt.Errorf("%s", res.Err))
	}
	if !res.OK {
		return Outcome{}, errors.NewResolutionError(errors.OpResolve,
			fmt.Errorf("%d unresolved field conflicts", len(res.Conflicts)))
	}
	return Outcome{Resolved: true, Value: res.Merged}, nil
}
