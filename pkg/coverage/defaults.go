package coverage

import (
	"strings"

	"github.com/dkoosis/megaqa/pkg/qa"
)

// defaultTagIDs are the capabilities every full run must prove when no
// registry file is checked in.
var defaultTagIDs = []struct {
	id, desc string
}{
	{"route:/login", "login page renders and accepts credentials"},
	{"route:/dashboard", "dashboard loads for an authenticated user"},
	{"route:/orders", "orders list route renders"},
	{"route:/clients", "clients list route renders"},
	{"route:/inventory", "inventory route renders"},
	{"api:auth.login", "login API call succeeds"},
	{"api:auth.me", "session identity API call succeeds"},
	{"api:orders.list", "orders list API call succeeds"},
	{"api:clients.list", "clients list API call succeeds"},
	{"api:batches.list", "batches list API call succeeds"},
	{"TS-001", "command palette opens from the keyboard"},
	{"TS-002", "global theme toggle applies"},
	{"TS-1.1", "dashboard KPI protocol step"},
	{"TS-2.1", "order creation protocol step"},
	{"TS-11.1", "inventory adjustment protocol step"},
	{"regression:cmd-k", "Cmd+K palette regression"},
	{"regression:theme-toggle", "theme toggle regression"},
	{"regression:no-spinner", "pages settle without a stuck spinner"},
	{"regression:layout-consistency", "shared layout chrome is consistent"},
	{"db-invariants", "backend database invariants hold"},
}

// DefaultTags returns the built-in registry. All tags are required.
func DefaultTags() []qa.CoverageTag {
	tags := make([]qa.CoverageTag, 0, len(defaultTagIDs))
	for _, d := range defaultTagIDs {
		tags = append(tags, qa.CoverageTag{
			ID:          d.id,
			Category:    categoryOf(d.id),
			Description: d.desc,
			Required:    true,
		})
	}
	return tags
}

// categoryOf infers a category from the conventional id prefix.
func categoryOf(id string) qa.TagCategory {
	switch {
	case strings.HasPrefix(id, "route:"):
		return qa.CategoryRoute
	case strings.HasPrefix(id, "api:"):
		return qa.CategoryAPI
	case strings.HasPrefix(id, "regression:"):
		return qa.CategoryRegression
	case strings.HasPrefix(id, "TS-"):
		return qa.CategoryProtocol
	case strings.HasSuffix(id, "invariants"):
		return qa.CategoryInvariant
	}
	return qa.CategoryOther
}
