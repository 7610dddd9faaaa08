package config

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"strconv"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/filterline/internal/cache"
	flerrors "github.com/standardbeagle/filterline/internal/errors"
)

// Validator validates configuration and sets smart defaults
type Validator struct{}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults validates configuration and applies smart defaults
// Returns an error if validation fails
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	if err := v.validateSearchConfig(&cfg.Search); err != nil {
		return err
	}
	if err := v.validateSafetyConfig(&cfg.Safety); err != nil {
		return err
	}
	if cfg.Cache.MaxAgeHours < 0 {
		return flerrors.NewConfigError("cache.max_age_hours", strconv.Itoa(cfg.Cache.MaxAgeHours), errors.New("cannot be negative"))
	}
	if cfg.Performance.MaxConcurrentSearches < 0 {
		return flerrors.NewConfigError("performance.max_concurrent_searches", strconv.Itoa(cfg.Performance.MaxConcurrentSearches), errors.New("cannot be negative"))
	}
	if cfg.Watch.DebounceMs < 0 {
		return flerrors.NewConfigError("watch.debounce_ms", strconv.Itoa(cfg.Watch.DebounceMs), errors.New("cannot be negative"))
	}
	if cfg.Context.Lines < 0 {
		return flerrors.NewConfigError("context.lines", strconv.Itoa(cfg.Context.Lines), errors.New("cannot be negative"))
	}
	if cfg.Context.MaxResultSize < 0 {
		return flerrors.NewConfigError("context.max_result_size", strconv.FormatInt(cfg.Context.MaxResultSize, 10), errors.New("cannot be negative"))
	}

	v.setSmartDefaults(cfg)
	return nil
}

// validateSearchConfig validates search defaults
func (v *Validator) validateSearchConfig(search *Search) error {
	if search.ContextLines < 0 {
		return flerrors.NewConfigError("search.context_lines", strconv.Itoa(search.ContextLines), errors.New("cannot be negative"))
	}
	for _, g := range search.Globs {
		if !doublestar.ValidatePattern(g) {
			return flerrors.NewConfigError("search.globs", g, errors.New("invalid glob pattern"))
		}
	}
	return nil
}

// validateSafetyConfig validates result gate settings
func (v *Validator) validateSafetyConfig(safety *Safety) error {
	if math.IsNaN(safety.Factor) || safety.Factor <= 0 {
		return flerrors.NewConfigError("safety.factor", fmt.Sprint(safety.Factor), errors.New("must be positive"))
	}
	if math.IsNaN(safety.SystemFraction) || safety.SystemFraction < 0 || safety.SystemFraction > 1 {
		return flerrors.NewConfigError("safety.system_fraction", fmt.Sprint(safety.SystemFraction), errors.New("must be between 0 and 1"))
	}
	if safety.HeapBudget < 0 {
		return flerrors.NewConfigError("safety.heap_budget", strconv.FormatInt(safety.HeapBudget, 10), errors.New("cannot be negative"))
	}
	return nil
}

// setSmartDefaults applies smart defaults based on system capabilities
func (v *Validator) setSmartDefaults(cfg *Config) {
	// Leave one core for the host when running searches side by side
	if cfg.Performance.MaxConcurrentSearches == 0 {
		cfg.Performance.MaxConcurrentSearches = max(1, runtime.NumCPU()-1)
	}

	if cfg.Safety.SystemFraction == 0 {
		cfg.Safety.SystemFraction = DefaultSystemFraction
	}

	if cfg.Cache.Root == "" {
		cfg.Cache.Root = cache.DefaultRoot()
	}

	if cfg.Context.MaxResultSize == 0 {
		cfg.Context.MaxResultSize = DefaultMaxContextResultMB * 1024 * 1024
	}
}

// ValidateConfig is a convenience function for quick validation
func ValidateConfig(cfg *Config) error {
	validator := NewValidator()
	return validator.ValidateAndSetDefaults(cfg)
}
