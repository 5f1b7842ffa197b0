// Package catalog remembers which connections a search session has already
// surfaced, keyed by their structural fingerprint.
package catalog

import "ressuche.dev/internal/models"

// Catalog is owned by a single session and is not safe for concurrent use.
//
// Fingerprints recorded since the last Commit form the pending scope. A
// Rollback unrecords exactly those, so a page that has to be re-scraped is
// not mistaken for a page of duplicates.
type Catalog struct {
	seen    map[models.Fingerprint]struct{}
	pending []models.Fingerprint
}

func New() *Catalog {
	return &Catalog{seen: make(map[models.Fingerprint]struct{})}
}

// Seen reports whether a structurally equal connection was recorded before.
func (c *Catalog) Seen(conn models.Connection) bool {
	_, ok := c.seen[conn.Fingerprint()]
	return ok
}

// Record marks the connection as seen. Recording a known fingerprint is a no-op.
func (c *Catalog) Record(conn models.Connection) {
	fp := conn.Fingerprint()
	if _, ok := c.seen[fp]; ok {
		return
	}
	c.seen[fp] = struct{}{}
	c.pending = append(c.pending, fp)
}

// Commit makes every pending fingerprint permanent.
func (c *Catalog) Commit() {
	c.pending = c.pending[:0]
}

// Rollback unrecords the fingerprints recorded since the last Commit and
// returns how many were removed.
func (c *Catalog) Rollback() int {
	n := len(c.pending)
	for _, fp := range c.pending {
		delete(c.seen, fp)
	}
	c.pending = c.pending[:0]
	return n
}

// Pending returns the number of uncommitted fingerprints.
func (c *Catalog) Pending() int {
	return len(c.pending)
}

// Len returns the number of recorded fingerprints.
func (c *Catalog) Len() int {
	return len(c.seen)
}
