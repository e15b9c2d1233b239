// Package classify assigns an advisory root-cause bucket to a failure from
// its captured evidence.
//
// Rules are evaluated in order and the first match wins:
//
//  1. a failed request against the application's own API, or any 5xx
//  2. environment markers (refused connections, DNS, browser launch)
//  3. fixture or setup markers, or a test that passed on retry
//  4. console errors, assertion, selector or timeout messages
//  5. a default chosen from the suite category
//
// The result depends on evidence alone, so the same failure classifies the
// same way on every run.
package classify

import (
	"net/url"
	"strings"

	"github.com/dkoosis/megaqa/pkg/qa"
)

// DefaultAPIPrefixes are the path prefixes treated as the app's own API.
var DefaultAPIPrefixes = []string{"/api/", "/trpc/"}

// Input is the evidence available for one failure.
type Input struct {
	ErrorMessage    string
	ErrorStack      string
	ConsoleErrors   []string
	NetworkFailures []qa.NetworkFailure
	// Category is the suite category (unit, contract, lint, must-hit, ...).
	Category string
	// PassedOnRetry is true when a later attempt of the same test passed.
	PassedOnRetry bool
}

// Classifier holds the configurable parts of the heuristic.
type Classifier struct {
	APIPrefixes []string
}

// New returns a classifier. Empty prefixes select DefaultAPIPrefixes.
func New(apiPrefixes []string) Classifier {
	if len(apiPrefixes) == 0 {
		apiPrefixes = DefaultAPIPrefixes
	}
	return Classifier{APIPrefixes: apiPrefixes}
}

var environmentMarkers = []string{
	"econnrefused",
	"econnreset",
	"enotfound",
	"eaddrinuse",
	"connection refused",
	"no such host",
	"browsertype.launch",
	"executable doesn't exist",
	"database",
	"enospc",
}

var setupMarkers = []string{
	"beforeall",
	"beforeeach",
	"afterall",
	"aftereach",
	"fixture",
	"test setup",
	"seed data",
	"seeding",
}

var frontendMarkers = []string{
	"expect(",
	"expected",
	"assert",
	"locator",
	"selector",
	"tobevisible",
	"timeout",
	"timed out",
	"not visible",
	"element",
}

// Classify returns the bucket for in. It never panics and always returns
// a valid classification.
func (c Classifier) Classify(in Input) qa.Classification {
	for _, nf := range in.NetworkFailures {
		if c.ownAPI(nf.URL) {
			return qa.ClassBackend
		}
		// a 5xx from the app's own origin, even outside the API prefixes
		if nf.Status >= 500 && nf.Status <= 599 && sameOrigin(nf.URL) {
			return qa.ClassBackend
		}
	}

	text := strings.ToLower(in.ErrorMessage + "\n" + in.ErrorStack)
	if containsAny(text, environmentMarkers) {
		return qa.ClassEnvironment
	}
	if in.PassedOnRetry || containsAny(text, setupMarkers) {
		return qa.ClassTestIssue
	}
	if len(in.ConsoleErrors) > 0 || containsAny(text, frontendMarkers) {
		return qa.ClassFrontend
	}
	return ByCategory(in.Category)
}

// ByCategory is the fallback when evidence is inconclusive.
func ByCategory(category string) qa.Classification {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case "unit", "contract", "property", "invariant", "backend":
		return qa.ClassBackend
	case "lint", "typecheck":
		return qa.ClassFrontend
	}
	return qa.DefaultClassification
}

func (c Classifier) ownAPI(raw string) bool {
	path := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		path = u.Path
	}
	for _, p := range c.APIPrefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// sameOrigin reports whether raw is relative, i.e. served by the app.
func sameOrigin(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Host == ""
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
