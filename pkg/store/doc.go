// Package store defines the read-only contract for fetching flags and
// rules, with in-memory and PostgreSQL implementations. All writes belong
// to the external management layer.
package store
