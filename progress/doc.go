// Package progress keeps live counters of transactions moving through the
// pipeline. The counters feed the dashboard statistics and can be observed
// through an OnChange callback.
package progress
