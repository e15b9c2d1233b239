package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dkoosis/megaqa/pkg/qa"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	c := New(nil)
	tests := []struct {
		name string
		in   Input
		want qa.Classification
	}{
		{
			name: "own api failure is backend",
			in: Input{
				ErrorMessage:    "expect(locator).toBeVisible() failed",
				NetworkFailures: []qa.NetworkFailure{{Method: "POST", URL: "http://localhost:3000/api/orders", Status: 400}},
			},
			want: qa.ClassBackend,
		},
		{
			name: "third party 5xx falls through",
			in:   Input{NetworkFailures: []qa.NetworkFailure{{Method: "GET", URL: "https://cdn.example.com/x.js", Status: 503}}},
			want: qa.ClassFrontend,
		},
		{
			name: "same origin 5xx outside api is backend",
			in:   Input{NetworkFailures: []qa.NetworkFailure{{Method: "GET", URL: "/dashboard", Status: 502}}},
			want: qa.ClassBackend,
		},
		{
			name: "third party 404 falls through",
			in:   Input{NetworkFailures: []qa.NetworkFailure{{Method: "GET", URL: "https://cdn.example.com/x.js", Status: 404}}},
			want: qa.ClassFrontend,
		},
		{
			name: "connection refused is environment",
			in:   Input{ErrorMessage: "page.goto: net::ERR_CONNECTION_REFUSED connect ECONNREFUSED 127.0.0.1:3000"},
			want: qa.ClassEnvironment,
		},
		{
			name: "browser launch is environment",
			in:   Input{ErrorMessage: "browserType.launch: Executable doesn't exist"},
			want: qa.ClassEnvironment,
		},
		{
			name: "fixture failure is test issue",
			in:   Input{ErrorMessage: "Error in beforeAll hook: fixture login failed"},
			want: qa.ClassTestIssue,
		},
		{
			name: "passed on retry is test issue",
			in:   Input{ErrorMessage: "expected 3 to be 4", PassedOnRetry: true},
			want: qa.ClassTestIssue,
		},
		{
			name: "console errors are frontend",
			in:   Input{ErrorMessage: "boom", ConsoleErrors: []string{"TypeError: x is undefined"}},
			want: qa.ClassFrontend,
		},
		{
			name: "selector timeout is frontend",
			in:   Input{ErrorMessage: "Timeout 5000ms exceeded waiting for locator('#save')"},
			want: qa.ClassFrontend,
		},
		{
			name: "unit default is backend",
			in:   Input{ErrorMessage: "boom", Category: "unit"},
			want: qa.ClassBackend,
		},
		{
			name: "lint default is frontend",
			in:   Input{ErrorMessage: "no-unused-vars", Category: "lint"},
			want: qa.ClassFrontend,
		},
		{
			name: "empty evidence uses default",
			in:   Input{},
			want: qa.DefaultClassification,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, c.Classify(tt.in))
		})
	}
}

func TestClassify_CustomPrefixes(t *testing.T) {
	c := New([]string{"/graphql"})
	in := Input{NetworkFailures: []qa.NetworkFailure{{URL: "/graphql", Status: 400}}}
	assert.Equal(t, qa.ClassBackend, c.Classify(in))

	in.NetworkFailures[0].URL = "/api/orders"
	assert.Equal(t, qa.ClassFrontend, c.Classify(in))
}

func TestClassify_IsStable(t *testing.T) {
	c := New(nil)
	in := Input{ErrorMessage: "database is locked", Category: "unit"}
	first := c.Classify(in)
	for range 5 {
		assert.Equal(t, first, c.Classify(in))
	}
	assert.Equal(t, qa.ClassEnvironment, first)
}
