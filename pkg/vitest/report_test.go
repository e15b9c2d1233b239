package vitest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoosis/megaqa/pkg/qa"
)

const sample = `{
  "numTotalTests": 4, "numPassedTests": 1, "numFailedTests": 2, "numPendingTests": 1, "success": false,
  "testResults": [
    {"name": "/repo/tests/property/orders.test.ts", "status": "failed", "message": "",
     "assertionResults": [
       {"ancestorTitles": ["orders"], "fullName": "orders totals never negative", "title": "totals never negative",
        "status": "passed", "duration": 12.4, "failureMessages": []},
       {"ancestorTitles": ["orders"], "fullName": "orders rounding", "title": "rounding",
        "status": "failed", "duration": 3, "failureMessages": ["AssertionError: expected 0.30000000000000004 to be 0.3\n    at orders.test.ts:20:5"]},
       {"ancestorTitles": [], "title": "later", "status": "todo", "failureMessages": []}
     ]},
    {"name": "/repo/tests/contract/api.test.ts", "status": "failed",
     "message": "Failed to load url ./client (resolved id: ./client)\nat ssrImport", "assertionResults": []}
  ]
}`

func TestCases(t *testing.T) {
	rep, err := ParseBytes([]byte("\x1b[32m RUN \x1b[0m v2.1\n" + sample))
	require.NoError(t, err)
	assert.False(t, rep.Success)

	cases := rep.Cases()
	require.Len(t, cases, 4)

	assert.Equal(t, qa.TestPass, cases[0].Status)
	assert.Equal(t, int64(12), cases[0].DurationMs)

	assert.Equal(t, "orders rounding", cases[1].Title)
	assert.Equal(t, qa.TestFail, cases[1].Status)
	assert.Equal(t, "AssertionError: expected 0.30000000000000004 to be 0.3", cases[1].Error)
	assert.Contains(t, cases[1].Stack, "orders.test.ts:20:5")

	assert.Equal(t, "later", cases[2].Title)
	assert.Equal(t, qa.TestSkip, cases[2].Status)

	assert.Equal(t, qa.TestFail, cases[3].Status)
	assert.Equal(t, "Failed to load url ./client (resolved id: ./client)", cases[3].Error)
}

func TestParseBytes_Rejects(t *testing.T) {
	_, err := ParseBytes([]byte(`{"foo":1}`))
	assert.Error(t, err)
	_, err = ParseBytes([]byte("segfault"))
	assert.Error(t, err)
}
