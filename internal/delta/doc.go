// Package delta computes and applies incremental change sets between two
// paired devices. A Delta is built from the change-history provider's feed
// since an opaque cursor, reduced to at most one operation per logical
// record, and applied idempotently on the other side with last-write-wins
// conflict resolution.
//
// Known limitation: records are identified for sync purposes by a single
// designated identity attribute, not a guaranteed-unique key. Two distinct
// records that share the same identity value would collide on apply.
package delta
