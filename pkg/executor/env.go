package executor

import (
	"sort"
	"strings"

	"taskagent/pkg/models"
)

// EnvPrefix is prepended to every upper-cased parameter key.
const EnvPrefix = "PARAM_"

// buildEnv appends one PARAM_<KEY> entry per parameter to base. Entries come
// after the inherited environment, so a parameter overrides a parent variable
// of the same name. Keys are expected to have passed Parameters.Validate.
func buildEnv(base []string, params models.Parameters) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(base)+len(keys))
	env = append(env, base...)
	for _, k := range keys {
		env = append(env, EnvPrefix+strings.ToUpper(k)+"="+params[k])
	}
	return env
}
