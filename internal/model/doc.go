// Package model defines the typed records persisted by the document store.
//
// Records are untyped JSON at rest; these types are the boundary at which
// callers deserialize and validate them. Field names match the on-disk JSON
// keys exactly so files written by earlier versions stay readable.
//
// Timestamps are UTC with second precision and serialize as
// "2006-01-02T15:04:05Z".
package model
