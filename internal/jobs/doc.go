// Package jobs defines the job data model and the TTL-bound status store.
//
// A job exists in the store from creation, which already implies it is
// processing; the only transitions out of that state are completed or
// failed, applied through a guarded compare-and-set so the monitor and
// webhook completion paths converge on a single terminal result.
package jobs
