package sharedutil

func FilterSlice[T any](ss []T, test func(T) bool) []T {
	if ss == nil {
		return nil
	}
	result := make([]T, 0)
	for _, s := range ss {
		if test(s) {
			result = append(result, s)
		}
	}
	return result
}

func MapSlice[T any, U any](ts []T, f func(T) U) []U {
	if ts == nil {
		return nil
	}
	result := make([]U, len(ts))
	for i, t := range ts {
		result[i] = f(t)
	}
	return result
}

// Find returns the first element matching pred.
func Find[T any](ts []T, pred func(T) bool) (T, bool) {
	for _, t := range ts {
		if pred(t) {
			return t, true
		}
	}
	var zero T
	return zero, false
}
