// Package daemon assembles the montage services: the job store, the worker
// pool, the remote delegations, the HTTP API, and the periodic maintenance
// sweep. It enforces single-instance execution via a lock file.
package daemon
