package utils

// SliceToSet converts a slice of any comparable type to a set represented by a map[T]struct{}.
func SliceToSet[T comparable](slice []T) map[T]struct{} {
	set := make(map[T]struct{}, len(slice))
	for _, item := range slice {
		set[item] = struct{}{}
	}
	return set
}

// SetDiff returns the elements of a that are not present in b.
func SetDiff[T comparable](a, b map[T]struct{}) []T {
	var diff []T
	for item := range a {
		if _, ok := b[item]; !ok {
			diff = append(diff, item)
		}
	}
	return diff
}
