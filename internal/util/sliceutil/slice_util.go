// Package sliceutil contains generic helpers related to slices which aren't
// available in the standard library's `slices`.
package sliceutil

// Map manipulates a slice and transforms it to a slice of another type.
func Map[T any, R any](collection []T, mapFunc func(T) R) []R {
	result := make([]R, len(collection))

	for i, item := range collection {
		result[i] = mapFunc(item)
	}

	return result
}

// MapError manipulates a slice and transforms it to a slice of another type,
// returning the first error that occurred invoking the map function, if there
// was one.
func MapError[T any, R any](collection []T, mapFunc func(T) (R, error)) ([]R, error) {
	result := make([]R, len(collection))

	for i, item := range collection {
		var err error
		result[i], err = mapFunc(item)
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// Filter returns the items of a slice for which filterFunc returns true.
func Filter[T any](collection []T, filterFunc func(T) bool) []T {
	result := make([]T, 0, len(collection))

	for _, item := range collection {
		if filterFunc(item) {
			result = append(result, item)
		}
	}

	return result
}
