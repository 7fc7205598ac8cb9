// Package model defines domain entities built from WebAPI responses.
package model

import (
	"fmt"
	"time"

	"github.com/and161185/allegro-webapi/internal/errs"
)

// Session is the result of a successful login exchange.
type Session struct {
	Handle    string    // opaque sessionHandlePart
	UserID    int64     // owner of the session
	ValidFrom time.Time // local time of the login response
}

// ServerStatus is the part of doQuerySysStatus the login depends on.
type ServerStatus struct {
	VerKey int64  // protocol version key to echo as localVersion
	Info   string // component version string, diagnostics only
}

// Credentials identify the WebAPI account. Exactly one of Password and
// PasswordHash is used; a pre-hashed value wins.
type Credentials struct {
	Login        string
	Password     string
	PasswordHash string
}

// Validate reports a configuration error for incomplete credentials.
func (c Credentials) Validate() error {
	if c.Login == "" {
		return fmt.Errorf("%w: login is required", errs.ErrConfiguration)
	}
	if c.Password == "" && c.PasswordHash == "" {
		return fmt.Errorf("%w: password or password hash is required", errs.ErrConfiguration)
	}
	return nil
}

// Resolve returns the hash sent as userHashPassword.
func (c Credentials) Resolve(hash func(password string) string) string {
	if c.PasswordHash != "" {
		return c.PasswordHash
	}
	return hash(c.Password)
}

// Journal change types reported by doGetSiteJournal.
const (
	ChangeStart  = "start"
	ChangeEnd    = "end"
	ChangeBid    = "bid"
	ChangeBuyNow = "now"
	ChangeEdit   = "change"
)

// JournalEntry is a single site journal row.
type JournalEntry struct {
	RowID      int64
	ItemID     int64
	ChangeType string
	ChangeDate time.Time // zero when the server omits it
}

// EventKind names a journal-derived event.
type EventKind string

// Event kinds emitted by the journal poller.
const (
	EventBuyNow EventKind = "buynow"
	EventBid    EventKind = "bid"
	EventStart  EventKind = "start"
	EventEnd    EventKind = "end"
	EventChange EventKind = "change"
)

var kindByChange = map[string]EventKind{
	ChangeBuyNow: EventBuyNow,
	ChangeBid:    EventBid,
	ChangeStart:  EventStart,
	ChangeEnd:    EventEnd,
	ChangeEdit:   EventChange,
}

// KindOf maps a journal change type to an event kind.
func KindOf(changeType string) (EventKind, bool) {
	k, ok := kindByChange[changeType]
	return k, ok
}

// Event is emitted to subscribers for a journal entry of interest.
type Event struct {
	Kind       EventKind `json:"kind"`
	ItemID     int64     `json:"item_id"`
	RowID      int64     `json:"row_id"`
	ChangeType string    `json:"change_type"`
	ObservedAt time.Time `json:"observed_at"`
}
