package lua

import "errors"

// Errors returned by the rule engine.
var (
	// ErrNoRulesDir indicates an engine was created without a rules
	// directory.
	ErrNoRulesDir = errors.New("rules directory is required")

	// ErrEngineClosed is returned when analyzing through a closed engine.
	ErrEngineClosed = errors.New("rule engine is closed")

	// ErrMissingCheck indicates a rule file does not define a global
	// check function.
	ErrMissingCheck = errors.New("rule does not define a check function")

	// ErrBadRuleOutput indicates a rule returned something other than nil
	// or a JSON array string.
	ErrBadRuleOutput = errors.New("rule output is not a JSON array")
)

// Manifest validation errors.
var (
	ErrMissingRuleID       = errors.New("manifest: rule id is required")
	ErrMissingRuleFile     = errors.New("manifest: rule file is required")
	ErrInvalidRuleFile     = errors.New("manifest: rule file must be a local .lua path")
	ErrDuplicateRuleID     = errors.New("manifest: duplicate rule id")
	ErrInvalidRuleSeverity = errors.New("manifest: unknown severity")
)
