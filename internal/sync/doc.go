// Package sync orchestrates the synchronization of content entries into
// the search index.
//
// # Core Interfaces
//
//   - Manager: runs one full sync for a unit (fetch, index, reconcile)
//   - Lister: abstracts the paginated content fetch so tests can fake it
//
// # Sync flow
//
// A sync unit is one collection, optionally narrowed to a region. For each
// trigger the manager:
//
//  1. Drops redelivered triggers using the execution identifier ledger
//  2. Acquires the unit's slot in the active set, skipping if a sync for
//     the same unit is already in flight
//  3. Fetches every page of entries through the shared rate-limited
//     request scheduler
//  4. Writes the transformed records to the index in batches
//  5. Reconciles the index against the fetched identifier set, deleting
//     orphans within the safety threshold
//
// Reconciliation is withheld when the fetch is known to be partial: a
// missing page must never translate into index deletions. The safety
// threshold additionally guards against silent partial fetches.
//
// # Result Types
//
//   - Result: outcome of a sync (skip reason or counts and reconcile report)
//   - Error: structured error naming the stage that failed
//
// The coordinator subpackage provides the ticker-driven background loop
// that periodically syncs every configured unit.
package sync
