package jaccount

import (
	"golang.org/x/exp/slices"

	"github.com/jmapd/jmapd/store"
)

// noSuchMailboxID is used for mailbox references that cannot be a stored
// mailbox id. Restricting a query to it matches nothing.
const noSuchMailboxID int64 = -1

// MultiMailboxSearchQuery restricts a search query to a set of mailboxes.
type MultiMailboxSearchQuery struct {
	Query SearchQuery

	//empty means no restriction
	InMailboxes []int64

	NotInMailboxes []int64
}

// Match reports whether m satisfies the mailbox restrictions and the wrapped
// query.
func (q MultiMailboxSearchQuery) Match(m store.Message) bool {
	if len(q.InMailboxes) > 0 && !slices.Contains(q.InMailboxes, m.MailboxID) {
		return false
	}
	if slices.Contains(q.NotInMailboxes, m.MailboxID) {
		return false
	}
	return q.Query.Match(m)
}

// mailboxFilter restricts the query for one mailbox property of the filter.
// Mailbox filters never fail, an unknown mailbox reference simply matches
// nothing.
type mailboxFilter func(fc EmailFilterCondition, q MultiMailboxSearchQuery) MultiMailboxSearchQuery

var emailMailboxFilters = []mailboxFilter{
	filterInMailbox,
	filterInMailboxOtherThan,
}

// applyMailboxFilters folds the mailbox filter chain over q.
func applyMailboxFilters(fc EmailFilterCondition, q MultiMailboxSearchQuery) MultiMailboxSearchQuery {
	for _, filter := range emailMailboxFilters {
		q = filter(fc, q)
	}
	return q
}

func filterInMailbox(fc EmailFilterCondition, q MultiMailboxSearchQuery) MultiMailboxSearchQuery {
	if fc.InMailbox == nil {
		return q
	}
	id, err := fc.InMailbox.Int64()
	if err != nil {
		id = noSuchMailboxID
	}
	q.InMailboxes = append(slices.Clone(q.InMailboxes), id)
	return q
}

func filterInMailboxOtherThan(fc EmailFilterCondition, q MultiMailboxSearchQuery) MultiMailboxSearchQuery {
	if len(fc.InMailboxOtherThan) == 0 {
		return q
	}
	excluded := slices.Clone(q.NotInMailboxes)
	for _, mbID := range fc.InMailboxOtherThan {
		id, err := mbID.Int64()
		if err != nil {
			//an id that cannot reference a stored mailbox excludes nothing
			continue
		}
		excluded = append(excluded, id)
	}
	q.NotInMailboxes = excluded
	return q
}
