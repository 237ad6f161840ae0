// Package storage persists routines, completion marks and the local holiday
// cache.
//
// Drivers share one Store interface: memory for tests and dry runs, file for a
// dependency-free on-disk copy, sqlite for the daemon.
package storage
