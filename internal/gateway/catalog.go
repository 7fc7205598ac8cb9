package gateway

import (
	"fmt"
	"sync"
	"time"

	"github.com/and161185/allegro-webapi/internal/errs"
)

// journalPage caps the rows returned by one doGetSiteJournal call.
const journalPage = 100

// JournalRow is one site journal entry.
type JournalRow struct {
	RowID      int64
	ItemID     int64
	ChangeType string
	At         time.Time
}

// Catalog is the in-memory marketplace a gateway serves.
type Catalog struct {
	users map[int64]UserFixture
	items map[int64]ItemFixture
	cats  map[int64]CategoryFixture
	now   func() time.Time

	mu      sync.RWMutex
	journal []JournalRow
	lastRow int64
}

// NewCatalog indexes f and seeds the journal from f.Journal.
func NewCatalog(f *Fixtures) *Catalog {
	c := &Catalog{
		users: make(map[int64]UserFixture, len(f.Users)),
		items: make(map[int64]ItemFixture, len(f.Items)),
		cats:  make(map[int64]CategoryFixture, len(f.Categories)),
		now:   time.Now,
	}
	for _, u := range f.Users {
		c.users[u.ID] = u
	}
	for _, it := range f.Items {
		c.items[it.ID] = it
	}
	for _, cat := range f.Categories {
		c.cats[cat.ID] = cat
	}
	for _, j := range f.Journal {
		c.RecordJournal(j.ItemID, j.ChangeType)
	}
	return c
}

// User looks up a user by id.
func (c *Catalog) User(id int64) (UserFixture, error) {
	u, ok := c.users[id]
	if !ok {
		return UserFixture{}, fmt.Errorf("user %d: %w", id, errs.ErrNotFound)
	}
	return u, nil
}

// Item looks up an item by id.
func (c *Catalog) Item(id int64) (ItemFixture, error) {
	it, ok := c.items[id]
	if !ok {
		return ItemFixture{}, fmt.Errorf("item %d: %w", id, errs.ErrNotFound)
	}
	return it, nil
}

// CategoryPath returns the chain from the root down to id.
func (c *Catalog) CategoryPath(id int64) ([]CategoryFixture, error) {
	var rev []CategoryFixture
	for cur := id; cur != 0; {
		cat, ok := c.cats[cur]
		if !ok {
			return nil, fmt.Errorf("category %d: %w", cur, errs.ErrNotFound)
		}
		if len(rev) > len(c.cats) {
			return nil, fmt.Errorf("category %d: parent cycle", id)
		}
		rev = append(rev, cat)
		cur = cat.Parent
	}
	path := make([]CategoryFixture, len(rev))
	for i := range rev {
		path[len(rev)-1-i] = rev[i]
	}
	return path, nil
}

// RecordJournal appends an entry and returns its rowId.
func (c *Catalog) RecordJournal(itemID int64, changeType string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRow++
	c.journal = append(c.journal, JournalRow{
		RowID:      c.lastRow,
		ItemID:     itemID,
		ChangeType: changeType,
		At:         c.now(),
	})
	return c.lastRow
}

// JournalSince returns up to one page of rows after startingPoint, oldest
// first. keep filters rows; nil keeps all.
func (c *Catalog) JournalSince(startingPoint int64, keep func(JournalRow) bool) []JournalRow {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []JournalRow
	for _, r := range c.journal {
		if r.RowID <= startingPoint || (keep != nil && !keep(r)) {
			continue
		}
		out = append(out, r)
		if len(out) == journalPage {
			break
		}
	}
	return out
}
