// Package store defines the rows and interfaces of the normalized mobility
// schema. Implementations live in internal/storage; this package must not
// import database drivers or concrete clients.
package store
