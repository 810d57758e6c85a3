package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([^}]+?)\s*\}\}`)

// RenderPlaceholders substitutes {{ key }} placeholders from variables.
// A key is looked up verbatim first, then as a dotted path with optional
// [index] segments. Placeholders whose key cannot be resolved are kept as-is.
func RenderPlaceholders(template string, variables map[string]interface{}) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]

		if value, ok := variables[key]; ok {
			return stringify(value)
		}
		if value, ok := LookupPath(variables, key); ok {
			return stringify(value)
		}
		return match
	})
}

// LookupPath resolves a dotted path such as "user.tags[0].name"
func LookupPath(data map[string]interface{}, path string) (interface{}, bool) {
	var current interface{} = data

	for _, part := range strings.Split(path, ".") {
		name, index, hasIndex := splitIndex(part)

		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[name]
		if !ok {
			return nil, false
		}

		if hasIndex {
			array, ok := current.([]interface{})
			if !ok || index < 0 || index >= len(array) {
				return nil, false
			}
			current = array[index]
		}
	}

	return current, true
}

func splitIndex(part string) (string, int, bool) {
	open := strings.LastIndex(part, "[")
	if open <= 0 || !strings.HasSuffix(part, "]") {
		return part, 0, false
	}
	index, err := strconv.Atoi(part[open+1 : len(part)-1])
	if err != nil {
		return part, 0, false
	}
	return part[:open], index, true
}

func stringify(value interface{}) string {
	if value == nil {
		return "null"
	}
	return fmt.Sprintf("%v", value)
}
