package jaccount

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jmapd/jmapd/jmapserver/basetypes"
	"github.com/jmapd/jmapd/jmapserver/testutils"
	"github.com/jmapd/jmapd/store"
)

func TestQueryEmail(t *testing.T) {
	ctx := context.Background()
	const user = "mjl@example.org"

	newAccountWithMessages := func(t *testing.T) (*JAccount, store.Mailbox, []store.Message) {
		ja := newTestAccount(t, user)
		mb := store.Mailbox{Name: "Inbox", Role: "Inbox", Owner: user}
		insertMailbox(t, ja, &mb)

		base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		msgs := []store.Message{
			{MailboxID: mb.ID, Size: 100, Received: base, Subject: "invoice january", Flags: store.Flags{Seen: true}},
			{MailboxID: mb.ID, Size: 200, Received: base.Add(time.Hour), Subject: "weekly report"},
			{MailboxID: mb.ID, Size: 300, Received: base.Add(2 * time.Hour), Subject: "lunch?", HasAttachment: true},
		}
		for i := range msgs {
			insertMessage(t, ja, &msgs[i])
		}
		return ja, mb, msgs
	}

	t.Run("no filter returns everything newest first", func(t *testing.T) {
		ja, _, msgs := newAccountWithMessages(t)

		state, canCalc, position, ids, total, mErr := ja.QueryEmail(ctx, nil, nil, 0, nil, true)
		testutils.AssertNil(t, mErr)
		testutils.AssertTrue(t, state != "")
		testutils.AssertTrue(t, !canCalc)
		testutils.AssertEqual(t, basetypes.Int(0), position)
		testutils.AssertEqual(t, basetypes.Uint(3), total)
		require.Equal(t, []basetypes.Id{
			basetypes.NewIdFromInt64(msgs[2].ID),
			basetypes.NewIdFromInt64(msgs[1].ID),
			basetypes.NewIdFromInt64(msgs[0].ID),
		}, ids)
	})

	t.Run("filter on keyword", func(t *testing.T) {
		ja, _, msgs := newAccountWithMessages(t)

		f := basetypes.NewFilter(basetypes.FilterCondition{Property: "hasKeyword", AssertedValue: "$seen"})
		_, _, _, ids, _, mErr := ja.QueryEmail(ctx, &f, nil, 0, nil, false)
		testutils.AssertNil(t, mErr)
		require.Equal(t, []basetypes.Id{basetypes.NewIdFromInt64(msgs[0].ID)}, ids)
	})

	t.Run("filter inMailbox excludes other mailboxes", func(t *testing.T) {
		ja, mb, msgs := newAccountWithMessages(t)
		other := store.Mailbox{Name: "Archive", Owner: user}
		insertMailbox(t, ja, &other)
		insertMessage(t, ja, &store.Message{MailboxID: other.ID, Size: 50, Received: time.Now()})

		id := basetypes.NewIdFromInt64(mb.ID)
		f := basetypes.NewFilter(basetypes.FilterCondition{Property: "inMailbox", AssertedValue: string(id)})
		_, _, _, ids, total, mErr := ja.QueryEmail(ctx, &f, nil, 0, nil, true)
		testutils.AssertNil(t, mErr)
		testutils.AssertEqual(t, basetypes.Uint(3), total)
		require.Len(t, ids, len(msgs))
	})

	t.Run("unsupported filter fails", func(t *testing.T) {
		ja, _, _ := newAccountWithMessages(t)

		f := basetypes.NewFilter(basetypes.FilterCondition{Property: "someInThreadHaveKeyword", AssertedValue: "$seen"})
		_, _, _, _, _, mErr := ja.QueryEmail(ctx, &f, nil, 0, nil, false)
		testutils.AssertNotNil(t, mErr)
		testutils.AssertEqual(t, "unsupportedFilter", mErr.Type)
	})

	t.Run("sort on size ascending", func(t *testing.T) {
		ja, _, msgs := newAccountWithMessages(t)

		_, _, _, ids, _, mErr := ja.QueryEmail(ctx, nil, []basetypes.Comparator{{Property: "size", IsAscending: true}}, 0, nil, false)
		testutils.AssertNil(t, mErr)
		require.Equal(t, []basetypes.Id{
			basetypes.NewIdFromInt64(msgs[0].ID),
			basetypes.NewIdFromInt64(msgs[1].ID),
			basetypes.NewIdFromInt64(msgs[2].ID),
		}, ids)
	})

	t.Run("unsupported sort fails", func(t *testing.T) {
		ja, _, _ := newAccountWithMessages(t)

		_, _, _, _, _, mErr := ja.QueryEmail(ctx, nil, []basetypes.Comparator{{Property: "subject"}}, 0, nil, false)
		testutils.AssertNotNil(t, mErr)
		testutils.AssertEqual(t, "unsupportedSort", mErr.Type)
	})

	t.Run("position and limit", func(t *testing.T) {
		ja, _, msgs := newAccountWithMessages(t)

		t.Run("positive position", func(t *testing.T) {
			limit := basetypes.Uint(1)
			_, _, position, ids, total, mErr := ja.QueryEmail(ctx, nil, nil, 1, &limit, true)
			testutils.AssertNil(t, mErr)
			testutils.AssertEqual(t, basetypes.Int(1), position)
			testutils.AssertEqual(t, basetypes.Uint(3), total)
			require.Equal(t, []basetypes.Id{basetypes.NewIdFromInt64(msgs[1].ID)}, ids)
		})

		t.Run("negative position counts from the end", func(t *testing.T) {
			_, _, position, ids, _, mErr := ja.QueryEmail(ctx, nil, nil, -1, nil, false)
			testutils.AssertNil(t, mErr)
			testutils.AssertEqual(t, basetypes.Int(2), position)
			require.Equal(t, []basetypes.Id{basetypes.NewIdFromInt64(msgs[0].ID)}, ids)
		})
	})

	t.Run("messages in invisible mailboxes are excluded", func(t *testing.T) {
		ja, _, msgs := newAccountWithMessages(t)
		hidden := store.Mailbox{Name: "Hidden", Owner: "other@example.org"}
		insertMailbox(t, ja, &hidden)
		insertMessage(t, ja, &store.Message{MailboxID: hidden.ID, Size: 1, Received: time.Now()})

		_, _, _, ids, _, mErr := ja.QueryEmail(ctx, nil, nil, 0, nil, false)
		testutils.AssertNil(t, mErr)
		require.Len(t, ids, len(msgs))
	})
}

func TestGetEmail(t *testing.T) {
	ctx := context.Background()
	const user = "mjl@example.org"

	ja := newTestAccount(t, user)
	mb := store.Mailbox{Name: "Inbox", Role: "Inbox", Owner: user}
	insertMailbox(t, ja, &mb)
	m := store.Message{
		MailboxID: mb.ID,
		Size:      100,
		Received:  time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		Subject:   "hello",
		Flags:     store.Flags{Seen: true},
		Keywords:  []string{"custom"},
		ThreadID:  42,
	}
	insertMessage(t, ja, &m)
	expunged := store.Message{MailboxID: mb.ID, Expunged: true}
	insertMessage(t, ja, &expunged)

	result, notFound, state, mErr := ja.GetEmail(ctx, []basetypes.Id{
		basetypes.NewIdFromInt64(m.ID),
		basetypes.NewIdFromInt64(expunged.ID),
		"999",
	})
	testutils.AssertNil(t, mErr)
	testutils.AssertTrue(t, state != "")
	require.Len(t, result, 1)
	require.Len(t, notFound, 2)

	email := result[0]
	testutils.AssertEqual(t, basetypes.NewIdFromInt64(m.ID), email.Id)
	testutils.AssertEqual(t, "hello", email.Subject)
	testutils.AssertEqual(t, basetypes.Uint(100), email.Size)
	testutils.AssertEqual(t, basetypes.NewIdFromInt64(42), email.ThreadId)
	testutils.AssertTrue(t, email.MailboxIds[basetypes.NewIdFromInt64(mb.ID)])
	testutils.AssertTrue(t, email.Keywords["$seen"])
	testutils.AssertTrue(t, email.Keywords["custom"])
	testutils.AssertTrue(t, !email.HasAttachment)
}
