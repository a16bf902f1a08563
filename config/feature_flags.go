package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlags manages feature toggles for the attendance engine.
// Supports gradual rollout, per-registration targeting, and event-scoped
// experiments. Rollout is keyed by registration ID so a student sees
// consistent behavior across sessions.
type FeatureFlags struct {
	mu sync.RWMutex

	// Core features
	features map[string]*Feature

	// Override rules (for testing/debugging)
	overrides map[string]map[string]bool // registrationID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	// Registrations are assigned based on hash of their ID
	RolloutPercent int

	// Event targeting. Empty means all events.
	TargetEvents []string

	// Time-based activation
	EnabledFrom  *time.Time
	EnabledUntil *time.Time
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	RegistrationID string // Student registration on the event
	EventID        string // Campus event
	IsStaff        bool   // Staff accounts get all features
}

// Predefined feature flag names.
const (
	// === Refresh Features ===
	FeatureRefreshAuto            = "refresh.auto"             // Scheduled refresh cycles
	FeatureRefreshDistributedLock = "refresh.distributed_lock" // Redis lock across replicas

	// === Marking Features ===
	FeatureMarkingBulk         = "marking.bulk"          // Bulk roll-call marking
	FeatureMarkingCheckinCodes = "marking.checkin_codes" // Self check-in by code

	// === Progress Features ===
	FeatureProgressCache = "progress.cache" // Publish snapshots to Redis
	FeatureProgressView  = "progress.view"  // In-memory ranked progress cards

	// === Alert Features ===
	FeatureAlertAtRisk         = "alert.at_risk"         // Webhook alerts on at-risk students
	FeatureAlertRefreshFailure = "alert.refresh_failure" // Webhook alerts on failed cycles

	// === Experimental Features ===
	FeatureExperimentalMetrics = "experimental.metrics" // Prometheus metrics endpoint
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:  make(map[string]*Feature),
		overrides: make(map[string]map[string]bool),
	}

	// Initialize all features with defaults
	ff.initializeDefaults()

	// Load overrides from environment
	ff.loadFromEnvironment()

	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	// Refresh features - the engine's core loop, on by default
	ff.features[FeatureRefreshAuto] = &Feature{
		Name:           FeatureRefreshAuto,
		Description:    "Scheduled refresh cycles against the campus API",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureRefreshDistributedLock] = &Feature{
		Name:           FeatureRefreshDistributedLock,
		Description:    "Serialize refresh across replicas with a Redis lock",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Marking features
	ff.features[FeatureMarkingBulk] = &Feature{
		Name:           FeatureMarkingBulk,
		Description:    "Bulk roll-call marking",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureMarkingCheckinCodes] = &Feature{
		Name:           FeatureMarkingCheckinCodes,
		Description:    "Self check-in with per-session codes",
		Enabled:        true,
		RolloutPercent: 50, // Gradual rollout
	}

	// Progress features
	ff.features[FeatureProgressCache] = &Feature{
		Name:           FeatureProgressCache,
		Description:    "Publish refresh snapshots to Redis",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureProgressView] = &Feature{
		Name:           FeatureProgressView,
		Description:    "Keep ranked progress cards in memory",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Alert features - tuned to avoid noise
	ff.features[FeatureAlertAtRisk] = &Feature{
		Name:           FeatureAlertAtRisk,
		Description:    "Webhook alert when a student drops below the threshold",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureAlertRefreshFailure] = &Feature{
		Name:           FeatureAlertRefreshFailure,
		Description:    "Webhook alert on failed refresh cycles",
		Enabled:        false, // Noisy during campus API maintenance windows
		RolloutPercent: 0,
	}

	// Experimental features - disabled by default
	ff.features[FeatureExperimentalMetrics] = &Feature{
		Name:           FeatureExperimentalMetrics,
		Description:    "Prometheus metrics endpoint",
		Enabled:        false,
		RolloutPercent: 0,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_MARKING_CHECKIN_CODES=true
// Example: FEATURE_MARKING_CHECKIN_CODES=50 (50% rollout)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		envKey := featureNameToEnvKey(name)
		if val := os.Getenv(envKey); val != "" {
			// Try parsing as boolean
			if b, err := strconv.ParseBool(val); err == nil {
				feature.Enabled = b
				if b {
					feature.RolloutPercent = 100
				} else {
					feature.RolloutPercent = 0
				}
				continue
			}

			// Try parsing as percentage
			if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
				feature.Enabled = p > 0
				feature.RolloutPercent = p
			}
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "marking.checkin_codes" -> "FEATURE_MARKING_CHECKIN_CODES"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	// Check per-registration overrides first
	if ctx != nil && ctx.RegistrationID != "" {
		if overrides, ok := ff.overrides[ctx.RegistrationID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}

	// Staff accounts get all features
	if ctx != nil && ctx.IsStaff {
		return true
	}

	// Check if feature is enabled at all
	if !feature.Enabled {
		return false
	}

	// Check time-based activation
	now := time.Now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}

	// Check event targeting
	if len(feature.TargetEvents) > 0 && ctx != nil && ctx.EventID != "" {
		eventMatch := false
		for _, e := range feature.TargetEvents {
			if e == ctx.EventID {
				eventMatch = true
				break
			}
		}
		if !eventMatch {
			return false
		}
	}

	// Check rollout percentage
	if feature.RolloutPercent < 100 && ctx != nil && ctx.RegistrationID != "" {
		return ff.isInRollout(ctx.RegistrationID, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// isInRollout determines if a registration is in the rollout percentage.
// Uses consistent hashing so registrations stay in their bucket.
func (ff *FeatureFlags) isInRollout(registrationID, featureName string, percent int) bool {
	// Create a consistent hash for this registration+feature combination
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(registrationID))
	hash := h.Sum32()

	// Map to 0-99 range
	bucket := int(hash % 100)

	return bucket < percent
}

// SetOverride sets a feature override for a specific registration.
// Useful for testing and debugging.
func (ff *FeatureFlags) SetOverride(registrationID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.overrides[registrationID]; !ok {
		ff.overrides[registrationID] = make(map[string]bool)
	}
	ff.overrides[registrationID][featureName] = enabled
}

// ClearOverrides removes all overrides for a registration.
func (ff *FeatureFlags) ClearOverrides(registrationID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.overrides, registrationID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
// Thread-safe for live updates.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}

	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0

	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]*Feature, len(ff.features))
	for k, v := range ff.features {
		// Return a copy
		featureCopy := *v
		result[k] = &featureCopy
	}
	return result
}

// --- Convenience methods for common checks ---

// AlertsEnabled checks if any outbound alerts are enabled.
func (ff *FeatureFlags) AlertsEnabled(ctx *FeatureContext) bool {
	return ff.IsEnabled(FeatureAlertAtRisk, ctx) ||
		ff.IsEnabled(FeatureAlertRefreshFailure, ctx)
}

// CheckinEnabled checks if self check-in is available for the context.
func (ff *FeatureFlags) CheckinEnabled(ctx *FeatureContext) bool {
	return ff.IsEnabled(FeatureMarkingCheckinCodes, ctx)
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
