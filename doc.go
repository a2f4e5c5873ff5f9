// Package oliphant detects stale persistent objects using an external
// change-notification feed.
//
// When another process updates or deletes a row out-of-band, database
// triggers publish "<table>#<id>###<version>" notifications. Every checkpoint
// of a unit of work pulls that feed, applies it to a version ledger and
// compares the version carried by the in-memory object against it. A mismatch
// is reported as *StaleEntityError and, if a shared cache holds the outdated
// row, that entry is evicted.
//
// Components:
//   - ledger.Ledger: last-known version per entity (in-process or Redis).
//   - feed.Source: notification channel (file tail, Postgres LISTEN, Redis stream).
//   - Validator: pull, apply, seed, compare.
//   - Coherency: best-effort eviction from a shared cache (see package cache).
//   - Coordinator: the four checkpoint hooks called by the host framework.
//
// Detection is conservative: an entity the feed never mentioned is fresh, and
// a feed outage degrades to fewer detections, never to false conflicts.
//
// Hook usage:
//
//	det, _ := oliphant.New(oliphant.Options{Feed: src, Cache: shared})
//	s := det.NewSession(txID)
//	_ = det.OnMaterialize(ctx, s, orders.UID(id), entity.VersionOf(row.Version))
//	...
//	if err := det.OnPreFlush(ctx, s, orders.UID(id), entity.VersionOf(row.Version)); err != nil {
//	    // errors.Is(err, oliphant.ErrStaleEntity): abort or retry the unit of work
//	}
package oliphant
