package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestE2E exercises a running agent. Point TASKAGENT_E2E_URL at it, e.g.
// http://localhost:5000.
func TestE2E(t *testing.T) {
	baseURL := os.Getenv("TASKAGENT_E2E_URL")
	if baseURL == "" {
		t.Skip("TASKAGENT_E2E_URL not set")
	}
	client := &http.Client{Timeout: 30 * time.Second}

	getJSON := func(t *testing.T, path string, out any) {
		t.Helper()
		resp, err := client.Get(baseURL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}

	t.Run("ping", func(t *testing.T) {
		var out map[string]any
		getJSON(t, "/ping", &out)
		assert.Equal(t, "ok", out["status"])
	})

	t.Run("info", func(t *testing.T) {
		var out map[string]any
		getJSON(t, "/info", &out)
		assert.Equal(t, "online", out["status"])
		assert.NotEmpty(t, out["hostname"])
	})

	t.Run("scripts", func(t *testing.T) {
		var names []string
		getJSON(t, "/scripts", &names)
		assert.NotNil(t, names)
	})

	t.Run("execute", func(t *testing.T) {
		execID := uuid.New().String()
		body, _ := json.Marshal(map[string]any{
			"script_name":    "e2e.sh",
			"script_content": `echo "Hello $PARAM_WHO"`,
			"parameters":     map[string]any{"who": "World"},
			"execution_id":   execID,
		})
		resp, err := client.Post(baseURL+"/execute", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var outcome map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&outcome))
		assert.Equal(t, execID, outcome["execution_id"])
		assert.Equal(t, "success", outcome["status"])
		assert.Equal(t, "Hello World\n", outcome["output"])
	})
}
