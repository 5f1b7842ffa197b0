package utils

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"
)

// ExtractIDFromParams returns a route parameter without a trailing ".json".
func ExtractIDFromParams(r *http.Request, paramName string) string {
	params := httprouter.ParamsFromContext(r.Context())
	return strings.TrimSuffix(params.ByName(paramName), ".json")
}

// ParseIntParam reads an optional integer query parameter bounded by
// [min, max]. A missing value yields def; an invalid one is recorded in
// fieldErrors.
func ParseIntParam(params url.Values, key string, def, min, max int, fieldErrors map[string][]string) (int, map[string][]string) {
	if fieldErrors == nil {
		fieldErrors = make(map[string][]string)
	}
	raw := strings.TrimSpace(params.Get(key))
	if raw == "" {
		return def, fieldErrors
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min || v > max {
		fieldErrors[key] = append(fieldErrors[key], fmt.Sprintf("Invalid field value for field %q.", key))
		return def, fieldErrors
	}
	return v, fieldErrors
}
