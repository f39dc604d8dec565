// Package docstore persists per-tenant JSON document collections on the local
// filesystem.
//
// Each (entity, tenant) pair names one collection stored as a JSON array:
//
//	<root>/stores.json               tenant registry, not partitioned
//	<root>/<tenant>/menus.json
//	<root>/<tenant>/tables.json
//	<root>/<tenant>/sessions.json
//	<root>/<tenant>/orders.json
//	<root>/<tenant>/order_history.json
//
// Every operation runs inside the critical section of the pair's lock from a
// lockreg.Registry, so a read-modify-write on one pair is atomic with respect
// to every other operation on that pair. Different pairs never contend.
//
// Writes go to a "<file>.tmp" sibling which is then renamed over the target.
// A reader sees either the previous file or the new one, never a partial
// write. A failed write removes the temporary file and leaves the committed
// file untouched.
//
// A collection file that fails to parse is logged and read as empty.
//
// Records are untyped (Record). Collection[T] is the typed boundary callers
// use to deserialize into model types.
package docstore
