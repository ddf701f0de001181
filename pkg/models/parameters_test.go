package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParameters_UnmarshalCoercesValues(t *testing.T) {
	var p Parameters
	err := json.Unmarshal([]byte(`{
		"name": "world",
		"count": 3,
		"ratio": 1.5,
		"big": 12345678901234567890,
		"enabled": true,
		"tags": ["a", "b"],
		"opts": {"x": 1},
		"nothing": null
	}`), &p)
	require.NoError(t, err)

	assert.Equal(t, "world", p["name"])
	assert.Equal(t, "3", p["count"])
	assert.Equal(t, "1.5", p["ratio"])
	assert.Equal(t, "12345678901234567890", p["big"])
	assert.Equal(t, "true", p["enabled"])
	assert.Equal(t, `["a","b"]`, p["tags"])
	assert.Equal(t, `{"x":1}`, p["opts"])
	assert.Equal(t, "", p["nothing"])
}

func TestParameters_UnmarshalNull(t *testing.T) {
	p := Parameters{"stale": "x"}
	require.NoError(t, p.UnmarshalJSON([]byte("null")))
	assert.Nil(t, p)
}

func TestParameters_UnmarshalRejectsNonObject(t *testing.T) {
	var p Parameters
	assert.Error(t, json.Unmarshal([]byte(`["a"]`), &p))
	assert.Error(t, json.Unmarshal([]byte(`"text"`), &p))
}

func TestParameters_Validate(t *testing.T) {
	assert.NoError(t, Parameters{"name": "x", "_private": "y", "Key2": ""}.Validate())
	assert.NoError(t, Parameters(nil).Validate())

	tests := []struct {
		name   string
		params Parameters
	}{
		{"empty key", Parameters{"": "x"}},
		{"dash", Parameters{"bad-key": "x"}},
		{"leading digit", Parameters{"1st": "x"}},
		{"equals sign", Parameters{"a=b": "x"}},
		{"case collision", Parameters{"name": "a", "NAME": "b"}},
		{"nul value", Parameters{"name": "a\x00b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.params.Validate(), ErrInvalidParameter)
		})
	}
}

func TestExecutionOutcome_JSON(t *testing.T) {
	empty := ""
	data, err := json.Marshal(ExecutionOutcome{
		ExecutionID:    "abc",
		Status:         OutcomeSuccess,
		Output:         &empty,
		DurationMillis: 12,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"execution_id":"abc","status":"success","output":"","duration":12}`, string(data))

	data, err = json.Marshal(ExecutionOutcome{ExecutionID: "abc", Status: OutcomeError, Error: "boom"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"execution_id":"abc","status":"error","error":"boom","duration":0}`, string(data))
}

func TestExecutionOutcome_Stdout(t *testing.T) {
	out := "hi\n"
	assert.Equal(t, "hi\n", ExecutionOutcome{Output: &out}.Stdout())
	assert.Equal(t, "", ExecutionOutcome{}.Stdout())
	assert.True(t, ExecutionOutcome{Status: OutcomeSuccess}.Succeeded())
	assert.False(t, ExecutionOutcome{Status: OutcomeError}.Succeeded())
}
