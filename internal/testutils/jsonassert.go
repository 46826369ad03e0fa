// Package testutils holds helpers shared by the test suites.
package testutils

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// JSONEqual compares two JSON documents. Paths listed in unordered (dotted,
// e.g. "data.concerts") compare their lists as permutations instead of
// sequences; every other list compares element-wise in order.
func JSONEqual(expected, actual []byte, unordered ...string) (bool, error) {
	var e, a any
	if err := json.Unmarshal(expected, &e); err != nil {
		return false, fmt.Errorf("expected document: %w", err)
	}
	if err := json.Unmarshal(actual, &a); err != nil {
		return false, fmt.Errorf("actual document: %w", err)
	}
	set := make(map[string]bool, len(unordered))
	for _, p := range unordered {
		set[p] = true
	}
	return equalValue(e, a, "", set), nil
}

func equalValue(e, a any, path string, unordered map[string]bool) bool {
	switch e := e.(type) {
	case map[string]any:
		a, ok := a.(map[string]any)
		if !ok || len(e) != len(a) {
			return false
		}
		for k, ev := range e {
			av, ok := a[k]
			if !ok || !equalValue(ev, av, childPath(path, k), unordered) {
				return false
			}
		}
		return true
	case []any:
		a, ok := a.([]any)
		if !ok || len(e) != len(a) {
			return false
		}
		if unordered[path] {
			return permutationEqual(e, a, path, unordered)
		}
		for i := range e {
			if !equalValue(e[i], a[i], path, unordered) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(e, a)
	}
}

// permutationEqual matches every expected element against a distinct actual
// element.
func permutationEqual(e, a []any, path string, unordered map[string]bool) bool {
	used := make([]bool, len(a))
	for _, ev := range e {
		found := false
		for i, av := range a {
			if used[i] {
				continue
			}
			if equalValue(ev, av, path, unordered) {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func childPath(path, key string) string {
	if path == "" {
		return key
	}
	return strings.Join([]string{path, key}, ".")
}
