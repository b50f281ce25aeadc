package gen

// DeleteFromSliceUnordered deletes element i, by moving the last element into its place.
// The order of the remaining elements is not preserved.
func DeleteFromSliceUnordered[T any](s []T, i int) []T {
	last := len(s) - 1
	s[i] = s[last]
	var zero T
	s[last] = zero
	return s[:last]
}

// DeleteFirst deletes the first element that equals v, without preserving order.
// If v is not found, the slice is returned unchanged.
func DeleteFirst[T comparable](s []T, v T) []T {
	for i := range s {
		if s[i] == v {
			return DeleteFromSliceUnordered(s, i)
		}
	}
	return s
}
