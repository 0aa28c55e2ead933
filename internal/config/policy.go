package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

// ErrConfigValidation is returned when a policy document is inconsistent.
// It is fatal at startup.
var ErrConfigValidation = errors.New("config validation failed")

// weightTolerance is the allowed deviation of a weight sum from 1.0.
const weightTolerance = 1e-6

//go:embed default_policy.yaml
var defaultPolicyYAML []byte

// Policy is the externally supplied scoring and visibility policy.
type Policy struct {
	Weights             map[types.Dimension]float64                   `yaml:"weights"`
	SignificanceWeights types.SignificanceFactors                     `yaml:"significance_weights"`
	Tiers               TierThresholds                                `yaml:"tiers"`
	Decay               DecayPolicy                                   `yaml:"decay"`
	Lattice             map[types.SecurityLevel][]types.SecurityLevel `yaml:"lattice"`
}

// TierThresholds configure the significance bands and the intensity override.
type TierThresholds struct {
	LongTermIntensity      float64 `yaml:"long_term_intensity"`
	LongTermSignificance   float64 `yaml:"long_term_significance"`
	MediumTermSignificance float64 `yaml:"medium_term_significance"`
	MediumTermIntensity    float64 `yaml:"medium_term_intensity"`
}

// DecayPolicy configures decay resistance and the aging sweep.
type DecayPolicy struct {
	IntensityBoost          float64                      `yaml:"intensity_boost"`
	UniquenessBoost         float64                      `yaml:"uniqueness_boost"`
	EvictionExemptIntensity float64                      `yaml:"eviction_exempt_intensity"`
	Retention               map[types.Tier]RetentionRule `yaml:"retention"`
	Promotion               map[types.Tier]PromotionRule `yaml:"promotion"`
}

// RetentionRule is the demotion condition for one tier.
type RetentionRule struct {
	Window        time.Duration `yaml:"window"`
	MinResistance float64       `yaml:"min_resistance"`
}

// PromotionRule is the sweep-time promotion condition out of one tier.
type PromotionRule struct {
	After           time.Duration `yaml:"after"`
	MinSignificance float64       `yaml:"min_significance"`
	MinIntensity    float64       `yaml:"min_intensity"`
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() *Policy {
	p, err := ParsePolicy(defaultPolicyYAML)
	if err != nil {
		panic(fmt.Sprintf("config: built-in policy is invalid: %v", err))
	}
	return p
}

// LoadPolicy reads and validates the policy at path. An empty path selects
// the built-in policy and logs a warning so the substitution is visible.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		log.Printf("config: WHISPER_POLICY_PATH not set, using built-in policy")
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read policy %s: %w", path, err)
	}
	p, err := ParsePolicy(data)
	if err != nil {
		return nil, fmt.Errorf("config: policy %s: %w", path, err)
	}
	return p, nil
}

// ParsePolicy decodes a YAML policy document and validates it. Unknown keys
// are rejected.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks weights, thresholds and lattice completeness.
func (p *Policy) Validate() error {
	var errs []error

	sum := 0.0
	for dim, w := range p.Weights {
		if !dim.IsValid() {
			errs = append(errs, fmt.Errorf("unknown weight dimension %q", dim))
			continue
		}
		if w < 0 {
			errs = append(errs, fmt.Errorf("weight for %s must be >= 0, got %g", dim, w))
		}
		sum += w
	}
	for _, dim := range types.AllDimensions {
		if _, ok := p.Weights[dim]; !ok {
			errs = append(errs, fmt.Errorf("missing weight for dimension %s", dim))
		}
	}
	if p.Weights[types.DimensionContent] <= 0 {
		errs = append(errs, errors.New("content weight must be > 0"))
	}
	if math.Abs(sum-1) > weightTolerance {
		errs = append(errs, fmt.Errorf("dimension weights must sum to 1.0, got %.6f", sum))
	}

	sw := p.SignificanceWeights
	sigSum := sw.EmotionalIntensity + sw.PersonalRelevance + sw.Uniqueness +
		sw.TemporalImportance + sw.InteractionValue + sw.PatternSignificance
	if sw != sw.Clamp() {
		errs = append(errs, errors.New("significance weights must be within [0,1]"))
	}
	if math.Abs(sigSum-1) > weightTolerance {
		errs = append(errs, fmt.Errorf("significance weights must sum to 1.0, got %.6f", sigSum))
	}

	t := p.Tiers
	for name, v := range map[string]float64{
		"long_term_intensity":      t.LongTermIntensity,
		"long_term_significance":   t.LongTermSignificance,
		"medium_term_significance": t.MediumTermSignificance,
		"medium_term_intensity":    t.MediumTermIntensity,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("tiers.%s must be within [0,1], got %g", name, v))
		}
	}
	if t.MediumTermSignificance > t.LongTermSignificance {
		errs = append(errs, errors.New("tiers.medium_term_significance must not exceed long_term_significance"))
	}
	if t.MediumTermIntensity > t.LongTermIntensity {
		errs = append(errs, errors.New("tiers.medium_term_intensity must not exceed long_term_intensity"))
	}

	d := p.Decay
	if d.IntensityBoost < 0 || d.UniquenessBoost < 0 {
		errs = append(errs, errors.New("decay boosts must be >= 0"))
	}
	if d.EvictionExemptIntensity < 0 || d.EvictionExemptIntensity > 1 {
		errs = append(errs, fmt.Errorf("decay.eviction_exempt_intensity must be within [0,1], got %g", d.EvictionExemptIntensity))
	}
	for _, tier := range types.ValidTiers {
		rule, ok := d.Retention[tier]
		if !ok {
			errs = append(errs, fmt.Errorf("decay.retention missing tier %s", tier))
			continue
		}
		if rule.Window <= 0 {
			errs = append(errs, fmt.Errorf("decay.retention.%s.window must be > 0", tier))
		}
	}
	for tier, rule := range d.Promotion {
		if tier == types.TierLong || !tier.IsValid() {
			errs = append(errs, fmt.Errorf("decay.promotion has no successor for tier %q", tier))
		}
		if rule.After <= 0 {
			errs = append(errs, fmt.Errorf("decay.promotion.%s.after must be > 0", tier))
		}
	}

	errs = append(errs, p.validateLattice()...)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfigValidation, errors.Join(errs...))
	}
	return nil
}

// validateLattice requires an entry for every level, reflexivity, global
// visibility of cross_server content, and that no caller is granted another
// context's private level.
func (p *Policy) validateLattice() []error {
	var errs []error
	for _, caller := range types.AllSecurityLevels {
		visible, ok := p.Lattice[caller]
		if !ok {
			errs = append(errs, fmt.Errorf("lattice missing caller level %s", caller))
			continue
		}
		seen := make(map[types.SecurityLevel]bool, len(visible))
		for _, lvl := range visible {
			if !lvl.IsValid() {
				errs = append(errs, fmt.Errorf("lattice.%s: unknown level %q", caller, lvl))
				continue
			}
			seen[lvl] = true
		}
		if !seen[caller] {
			errs = append(errs, fmt.Errorf("lattice.%s must include itself", caller))
		}
		if !seen[types.SecurityCrossServer] {
			errs = append(errs, fmt.Errorf("lattice.%s must include cross_server", caller))
		}
		for _, private := range []types.SecurityLevel{types.SecurityPrivateDM, types.SecurityPrivateChannel} {
			if private != caller && seen[private] {
				errs = append(errs, fmt.Errorf("lattice.%s must not include %s", caller, private))
			}
		}
	}
	for caller := range p.Lattice {
		if !caller.IsValid() {
			errs = append(errs, fmt.Errorf("lattice has unknown caller level %q", caller))
		}
	}
	return errs
}

// Weight returns the configured fusion weight of dim.
func (p *Policy) Weight(dim types.Dimension) float64 {
	return p.Weights[dim]
}
