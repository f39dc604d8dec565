// Package harness runs conformance scenarios against the ordering backend.
//
// A scenario drives the real services (menu catalog, table sessions,
// orders) on a throwaway data directory, records every operation and every
// published event in a trace, and then checks assertions over the trace and
// the stored collections.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: order_lifecycle
//	description: "Orders move from pending to completed and are archived"
//	session_expiry: 2h
//	setup:
//	  - action: seed
//	    args: {}
//	  - action: menu.find
//	    args: { name: 김치찌개 }
//	    save: { kimchi: id }
//	flow:
//	  - invoke: table.create
//	    args: { table_number: 1, password: "1234" }
//	  - invoke: session.start
//	    args: { table_number: 1 }
//	    save: { session: id }
//	  - invoke: order.create
//	    args:
//	      table_number: 1
//	      session_id: $session
//	      items: [{ menu_id: $kimchi, quantity: 2 }]
//	    expect:
//	      case: Success
//	      result: { total_amount: 18000, status: pending }
//	assertions:
//	  - type: trace_order
//	    actions: [session_started, order_created]
//	  - type: final_state
//	    table: orders
//	    where: { table_number: 1 }
//	    expect: { status: pending }
//
// Arguments of the form "$name" refer to values saved by an earlier step.
// A step without an expect clause must succeed. Error outcomes are named by
// their kind: NOT_FOUND, VALIDATION, DUPLICATE or CONCURRENCY.
//
// # Assertion Types
//
//   - trace_contains: an operation was invoked with matching args
//   - trace_order: operations or events first appear in the given order
//   - trace_count: an operation or event appears exactly N times
//   - final_state: exactly one record matches and has the expected fields
//   - state_count: exactly N records match
//
// # Deterministic Testing
//
// Runs use a fixed clock (advanced only by clock.advance steps), sequential
// ids and the cheapest bcrypt cost, so traces are reproducible and can be
// compared against golden snapshots.
package harness
