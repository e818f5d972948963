package models

// ProgressFunc receives sync progress updates. fraction runs 0.0..1.0 and
// every terminal state (success, partial, failure) reports a final 1.0.
type ProgressFunc func(fraction float64, listName string, processed, total int, message string)

// NopProgress discards progress updates.
func NopProgress(float64, string, int, int, string) {}
