package util

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/oliveagle/jsonpath"
)

var tokenRe = regexp.MustCompile("{(.*?)}")

// ResolveParams returns a copy of params with every {$.path} token replaced by
// the value found in data. A string made of a single token keeps the looked up
// value's type; unresolvable tokens are left as they are.
func ResolveParams(data map[string]any, params map[string]any) map[string]any {
	output := make(map[string]any, len(params))
	resolveParams(data, params, output)
	return output
}

// Lookup evaluates a jsonpath expression such as $.payload.message against data.
func Lookup(data any, path string) (any, error) {
	if !strings.HasPrefix(path, "$") {
		path = "$." + path
	}
	return jsonpath.JsonPathLookup(data, path)
}

func resolveParams(data map[string]any, params map[string]any, output map[string]any) {
	for k, v := range params {
		output[k] = resolveValue(data, v)
	}
}

func resolveValue(data map[string]any, v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		resolveParams(data, val, out)
		return out
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			out = append(out, resolveValue(data, item))
		}
		return out
	case string:
		return resolveString(data, val)
	default:
		return v
	}
}

func resolveString(data map[string]any, s string) any {
	tokens := tokenRe.FindAllString(s, -1)
	if len(tokens) == 0 {
		return s
	}
	tokenMap := make(map[string]any)
	for _, token := range tokens {
		path := strings.TrimSuffix(strings.TrimPrefix(token, "{"), "}")
		if !strings.HasPrefix(path, "$") {
			continue
		}
		value, err := jsonpath.JsonPathLookup(data, path)
		if err != nil {
			continue
		}
		tokenMap[token] = value
	}
	if len(tokens) == 1 && tokens[0] == s {
		if value, ok := tokenMap[s]; ok {
			return value
		}
		return s
	}
	newStr := s
	for t, tv := range tokenMap {
		newStr = strings.ReplaceAll(newStr, t, fmt.Sprintf("%v", tv))
	}
	return newStr
}
