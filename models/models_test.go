package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionalUnmarshal(t *testing.T) {
	tests := map[string]struct {
		raw       string
		wantValid bool
		want      string
	}{
		"string":        {`{"v":"text"}`, true, "text"},
		"empty string":  {`{"v":""}`, true, ""},
		"null":          {`{"v":null}`, false, ""},
		"missing":       {`{}`, false, ""},
		"number":        {`{"v":12}`, false, ""},
		"object":        {`{"v":{"type":"doc"}}`, false, ""},
		"array":         {`{"v":["a"]}`, false, ""},
		"bool":          {`{"v":true}`, false, ""},
		"padded null":   {`{"v": null }`, false, ""},
		"escaped value": {`{"v":"a\nb"}`, true, "a\nb"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var doc struct {
				V Optional[string] `json:"v"`
			}
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &doc))
			assert.Equal(t, tc.wantValid, doc.V.Valid)
			assert.Equal(t, tc.want, doc.V.Value)
		})
	}
}

func TestOptionalNestedMismatchKeepsSiblings(t *testing.T) {
	raw := `{"key":"A-1","fields":{"summary":"s","labels":[1],"status":{"name":3},"reporter":{"displayName":"Ann"}}}`

	var issue RawIssue
	require.NoError(t, json.Unmarshal([]byte(raw), &issue))
	require.NotNil(t, issue.Fields)

	assert.Equal(t, "s", *issue.Fields.Summary)
	assert.False(t, issue.Fields.Labels.Valid)
	assert.True(t, issue.Fields.Status.Valid)
	assert.False(t, issue.Fields.Status.Value.Name.Valid)
	assert.Equal(t, "Ann", issue.Fields.Reporter.Value.DisplayName.Or("Unknown"))
}

func TestOptionalOr(t *testing.T) {
	assert.Equal(t, "fallback", Optional[string]{}.Or("fallback"))
	assert.Equal(t, "set", Optional[string]{Value: "set", Valid: true}.Or("fallback"))
	assert.Equal(t, []string{"x"}, Optional[[]string]{Value: []string{"x"}, Valid: true}.Or(nil))
}
