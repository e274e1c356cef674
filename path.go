package farez

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
)

// Root is the path of a response document.
const Root = "$"

// field appends a key to a JSON-path-like location.
func field(base, key string) string {
	return base + "." + key
}

// index appends a list index to a JSON-path-like location.
func index(base string, i int) string {
	return fmt.Sprintf("%s[%d]", base, i)
}

// sortedKeys returns the keys of m in ascending order so findings are
// reported in a stable order.
func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	return slices.Sorted(maps.Keys(m))
}

// lookup walks a generic JSON tree by object keys. Missing keys and
// non-object nodes yield nil.
func lookup(tree any, keys ...string) any {
	node := tree
	for _, k := range keys {
		obj, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = obj[k]
	}
	return node
}

// asList returns node as a list, or nil.
func asList(node any) []any {
	list, _ := node.([]any)
	return list
}

// asObject returns node as an object, or nil.
func asObject(node any) map[string]any {
	obj, _ := node.(map[string]any)
	return obj
}
