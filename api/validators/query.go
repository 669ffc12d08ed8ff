package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/wdir-license-backend/pkg/errors"
)

// ParseQueryInt reads an integer query parameter bounded to [min, max]. A
// missing or blank parameter yields def.
func ParseQueryInt(r *http.Request, key string, def, min, max int) (int, error) {
	raw, ok := queryValue(r, key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidQuery(key, "must be an integer", nil)
	}
	if n < min || n > max {
		return 0, invalidQuery(key, "is out of range", map[string]any{"min": min, "max": max})
	}
	return n, nil
}

// ParseQueryBool reads a boolean query parameter in any form strconv accepts
// (1, t, true, 0, f, false...). A missing or blank parameter yields def.
func ParseQueryBool(r *http.Request, key string, def bool) (bool, error) {
	raw, ok := queryValue(r, key)
	if !ok {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, invalidQuery(key, "must be a boolean", nil)
	}
	return v, nil
}

func queryValue(r *http.Request, key string) (string, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	return raw, raw != ""
}

func invalidQuery(key, problem string, extra map[string]any) error {
	details := map[string]any{"field": key}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.New(pkgerrors.CodeValidation, key+" "+problem).WithDetails(details)
}
