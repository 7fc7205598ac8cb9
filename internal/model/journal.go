package model

import (
	"time"

	"github.com/and161185/allegro-webapi/internal/rpc"
)

// ParseJournal flattens a doGetSiteJournal response in server order.
func ParseJournal(raw rpc.Result) []JournalEntry {
	rows := raw.Items("siteJournalArray")
	out := make([]JournalEntry, 0, len(rows))
	for _, r := range rows {
		e := JournalEntry{
			RowID:      r.Int64("rowId"),
			ItemID:     r.Int64("itemId"),
			ChangeType: r.String("changeType"),
		}
		if ts := r.Int64("changeDate"); ts > 0 {
			e.ChangeDate = time.Unix(ts, 0).UTC()
		}
		out = append(out, e)
	}
	return out
}
