// Package config handles configuration loading and merging for megaqa.
//
// # Configuration Precedence
//
// Configuration values are resolved in the following order (highest to lowest priority):
//
//  1. CLI flags (--mode, --seed, --output, --package, --debug, etc.)
//  2. Environment variables (MEGAQA_MODE, MEGAQA_SEED, MEGAQA_OUTPUT_DIR, MEGAQA_LEDGER, CI, NO_COLOR)
//  3. YAML config file (.megaqa.yaml in the working directory or $XDG_CONFIG_HOME/megaqa/.megaqa.yaml)
//  4. Hardcoded defaults
//
// When a higher-priority source sets a value, it overrides any lower-priority values.
//
// # Suites
//
// The suites list replaces the default suites wholesale when present in the
// file. Each suite names the adapter that reads its tool's output (gotest,
// playwright, vitest, sarif, diag, command) and, optionally, the modes it
// runs in.
//
// # CI Mode Behavior
//
// When CI mode is enabled (via --ci, CI=true or ci: true in YAML):
//   - Colors and the live progress display are disabled
//   - The run mode defaults to ci, which packages new failures
//
// # Environment Variables
//
//   - MEGAQA_NO_COLOR or NO_COLOR: Set to "true" or "1" to disable colors
//   - MEGAQA_CI or CI: Set to "true" or "1" to enable CI mode
//   - MEGAQA_DEBUG: Set to any non-empty value to enable debug logging
package config
