package jaccount

import (
	"testing"

	"github.com/jmapd/jmapd/jmapserver/basetypes"
	"github.com/jmapd/jmapd/jmapserver/testutils"
	"github.com/jmapd/jmapd/store"
)

func TestApplyMailboxFilters(t *testing.T) {
	t.Run("no mailbox properties leaves query unrestricted", func(t *testing.T) {
		q := applyMailboxFilters(EmailFilterCondition{}, MultiMailboxSearchQuery{})
		testutils.AssertEqual(t, 0, len(q.InMailboxes))
		testutils.AssertEqual(t, 0, len(q.NotInMailboxes))
		testutils.AssertTrue(t, q.Match(store.Message{MailboxID: 7}))
	})

	t.Run("inMailbox restricts", func(t *testing.T) {
		id := basetypes.NewIdFromInt64(3)
		q := applyMailboxFilters(EmailFilterCondition{InMailbox: &id}, MultiMailboxSearchQuery{})
		testutils.AssertTrue(t, q.Match(store.Message{MailboxID: 3}))
		testutils.AssertTrue(t, !q.Match(store.Message{MailboxID: 4}))
	})

	t.Run("unparsable inMailbox matches nothing", func(t *testing.T) {
		id := basetypes.Id("not-a-number")
		q := applyMailboxFilters(EmailFilterCondition{InMailbox: &id}, MultiMailboxSearchQuery{})
		testutils.AssertTrue(t, !q.Match(store.Message{MailboxID: 3}))
		testutils.AssertTrue(t, !q.Match(store.Message{MailboxID: 0}))
	})

	t.Run("inMailboxOtherThan excludes", func(t *testing.T) {
		q := applyMailboxFilters(EmailFilterCondition{
			InMailboxOtherThan: []basetypes.Id{basetypes.NewIdFromInt64(3), basetypes.NewIdFromInt64(5)},
		}, MultiMailboxSearchQuery{})
		testutils.AssertTrue(t, !q.Match(store.Message{MailboxID: 3}))
		testutils.AssertTrue(t, !q.Match(store.Message{MailboxID: 5}))
		testutils.AssertTrue(t, q.Match(store.Message{MailboxID: 4}))
	})

	t.Run("unparsable inMailboxOtherThan entries exclude nothing", func(t *testing.T) {
		q := applyMailboxFilters(EmailFilterCondition{
			InMailboxOtherThan: []basetypes.Id{"bogus", basetypes.NewIdFromInt64(5)},
		}, MultiMailboxSearchQuery{})
		testutils.AssertEqual(t, 1, len(q.NotInMailboxes))
		testutils.AssertTrue(t, !q.Match(store.Message{MailboxID: 5}))
		testutils.AssertTrue(t, q.Match(store.Message{MailboxID: 3}))
	})

	t.Run("both combine", func(t *testing.T) {
		id := basetypes.NewIdFromInt64(3)
		q := applyMailboxFilters(EmailFilterCondition{
			InMailbox:          &id,
			InMailboxOtherThan: []basetypes.Id{basetypes.NewIdFromInt64(3)},
		}, MultiMailboxSearchQuery{})
		//the exclusion wins from the restriction
		testutils.AssertTrue(t, !q.Match(store.Message{MailboxID: 3}))
	})

	t.Run("wrapped criteria still apply", func(t *testing.T) {
		inner, mErr := buildSearchQuery(EmailFilterCondition{HasKeyword: "$seen"})
		testutils.AssertNil(t, mErr)
		id := basetypes.NewIdFromInt64(3)
		q := applyMailboxFilters(EmailFilterCondition{InMailbox: &id}, MultiMailboxSearchQuery{Query: inner})
		testutils.AssertTrue(t, q.Match(store.Message{MailboxID: 3, Flags: store.Flags{Seen: true}}))
		testutils.AssertTrue(t, !q.Match(store.Message{MailboxID: 3}))
	})
}
