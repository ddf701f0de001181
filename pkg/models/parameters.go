package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cast"
)

// ErrInvalidParameter is returned by Parameters.Validate.
var ErrInvalidParameter = errors.New("invalid parameter")

// paramKeyPattern restricts keys to portable environment variable names.
var paramKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Parameters are caller supplied key/value pairs handed to a script through
// its environment. Values arrive as arbitrary JSON and are kept as text.
type Parameters map[string]string

// UnmarshalJSON accepts any JSON object and coerces every value to text:
// scalars via their literal form, arrays and objects via compact JSON.
func (p *Parameters) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("parameters must be a JSON object: %w", err)
	}
	if raw == nil {
		*p = nil
		return nil
	}

	out := make(Parameters, len(raw))
	for k, v := range raw {
		text, err := paramText(v)
		if err != nil {
			return fmt.Errorf("parameter %q: %w", k, err)
		}
		out[k] = text
	}
	*p = out
	return nil
}

func paramText(v any) (string, error) {
	switch v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return cast.ToStringE(v)
}

// Validate checks that every key is a safe environment identifier, that no
// two keys collide once upper-cased, and that no value contains a NUL byte.
func (p Parameters) Validate() error {
	seen := make(map[string]string, len(p))
	for k, v := range p {
		if !paramKeyPattern.MatchString(k) {
			return fmt.Errorf("%w: key %q must match %s", ErrInvalidParameter, k, paramKeyPattern)
		}
		upper := strings.ToUpper(k)
		if other, dup := seen[upper]; dup {
			return fmt.Errorf("%w: keys %q and %q both map to PARAM_%s", ErrInvalidParameter, other, k, upper)
		}
		seen[upper] = k
		if strings.IndexByte(v, 0) >= 0 {
			return fmt.Errorf("%w: value of %q contains a NUL byte", ErrInvalidParameter, k)
		}
	}
	return nil
}
