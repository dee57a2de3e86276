// Package dataloader provides generic helpers for batch loading: a batch
// query returns rows in storage order, and callers need them back in the
// order of the requested keys, or grouped by an owner key.
//
//	rows, _ := s.Query(ctx, "user", store.Filter{"id": ids})
//	ordered, errs := dataloader.OrderByKeys(keys, rows, func(r store.Row) string { return store.Key(r["id"]) })
package dataloader

import "errors"

// ErrNotFound is returned for a key with no value in a batch result.
var ErrNotFound = errors.New("dataloader: entity not found")

// KeyFunc extracts a key from a value.
type KeyFunc[K comparable, V any] func(V) K

// OrderByKeys reorders values to match the order of keys. The result has the
// same length as keys; a missing value is the zero value with ErrNotFound at
// the same index of the error slice.
func OrderByKeys[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) ([]V, []error) {
	lookup := make(map[K]V, len(values))
	for _, v := range values {
		lookup[keyFn(v)] = v
	}
	result := make([]V, len(keys))
	errs := make([]error, len(keys))
	for i, key := range keys {
		if v, ok := lookup[key]; ok {
			result[i] = v
		} else {
			errs[i] = ErrNotFound
		}
	}
	return result, errs
}

// GroupByKey groups values by key, keeping their relative order.
func GroupByKey[K comparable, V any](values []V, keyFn KeyFunc[K, V]) map[K][]V {
	result := make(map[K][]V)
	for _, v := range values {
		key := keyFn(v)
		result[key] = append(result[key], v)
	}
	return result
}

// OrderGroupsByKeys returns the group of every key, in key order. A key with
// no group gets a nil slice.
func OrderGroupsByKeys[K comparable, V any](keys []K, groups map[K][]V) [][]V {
	result := make([][]V, len(keys))
	for i, key := range keys {
		result[i] = groups[key]
	}
	return result
}

// Unique returns the values with distinct keys, in first-appearance order.
// Values for which skip reports true are dropped.
func Unique[K comparable, V any](values []V, keyFn KeyFunc[K, V], skip func(V) bool) []V {
	seen := make(map[K]bool, len(values))
	out := make([]V, 0, len(values))
	for _, v := range values {
		if skip != nil && skip(v) {
			continue
		}
		if k := keyFn(v); !seen[k] {
			seen[k] = true
			out = append(out, v)
		}
	}
	return out
}
