// Package key defines the sorted-store key model shared by every ivarator
// component: [Key], [Range] and an order-preserving byte encoding used by
// persisted segments and the pebble source adapter.
package key
