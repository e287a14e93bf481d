// Package harness runs scripted reconciler scenarios for conformance tests.
//
// A scenario is a YAML file with a list of steps (ingest text, merge a
// remote record, apply a filter, ...) and assertions on the resulting
// event trace and views:
//
//	name: remote_merge
//	description: Remote records land at the front of base
//	steps:
//	  - ingest: "1.50 10:00\n2.00 10:01"
//	  - remote: {id: 9001, key: peer-1, value: 3.1, time: "10:05", offset: 60}
//	assertions:
//	  - type: event_order
//	    kinds: [dataLoaded, realtimeRecord]
//	  - type: view
//	    view: base
//	    values: [3.1, 1.5, 2.0]
//
// Each run gets a fresh SQLite file, a frozen clock and fixed record keys,
// so traces are reproducible and can be compared against golden files.
//
// Step kinds:
//   - ingest: text for Reconciler.Ingest
//   - hydrate: limit for Reconciler.Hydrate
//   - remote: one record for Reconciler.ReceiveRemote
//   - sync_response: records for Reconciler.ReceiveSyncResponse
//   - filter: criteria for Reconciler.ApplyFilter
//   - clear_filter / clear_all: Reconciler.ClearFilter / Reconciler.ClearAll
//
// A step may name the error it expects with expect_error: validation or
// storage. Background writes are flushed before views are captured.
package harness
