package mailcapability

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jmapd/jmapd/jmapserver/basetypes"
	"github.com/jmapd/jmapd/jmapserver/jaccount"
	"github.com/jmapd/jmapd/jmapserver/testutils"
	"github.com/jmapd/jmapd/mlog"
	"github.com/jmapd/jmapd/store"
)

func newTestJAccount(t *testing.T, user string) *jaccount.JAccount {
	t.Helper()
	tdb, err := testutils.GetTestDB(store.DBTypes...)
	testutils.RequireNoError(t, err)
	t.Cleanup(func() {
		tdb.Close()
	})
	acc := &store.Account{Name: user, DB: tdb.DB}
	return jaccount.NewJAccount(acc, user, mlog.New("jaccount", nil))
}

func TestMailboxDT(t *testing.T) {
	ctx := context.Background()
	const user = "mjl@example.org"
	const accountId = basetypes.Id(user)

	mbDT := NewMailbox(mlog.New("mailcapability", nil))

	t.Run("name", func(t *testing.T) {
		testutils.AssertEqual(t, "Mailbox", mbDT.Name())
	})

	t.Run("get on empty account", func(t *testing.T) {
		ja := newTestJAccount(t, user)

		retAccountId, state, list, notFound, mErr := mbDT.Get(ctx, ja, accountId, nil, nil, nil)
		testutils.AssertNil(t, mErr)
		testutils.AssertEqual(t, accountId, retAccountId)
		testutils.AssertEqual(t, "0", state)
		testutils.AssertEqual(t, 0, len(list))
		//notFound must be an empty array, not null
		testutils.AssertNotNil(t, notFound)
		testutils.AssertEqual(t, 0, len(notFound))
	})

	t.Run("set and get roundtrip", func(t *testing.T) {
		ja := newTestJAccount(t, user)

		create := map[basetypes.Id]json.RawMessage{
			"a": json.RawMessage(`{"name":"Projects"}`),
		}
		createdIDs := basetypes.NewCreatedIDs()
		retAccountId, oldState, newState, created, _, _, notCreated, _, _, mErr := mbDT.Set(ctx, ja, accountId, nil, create, nil, nil, createdIDs, mbDT.CustomSetRequestParams())
		testutils.AssertNil(t, mErr)
		testutils.AssertEqual(t, accountId, retAccountId)
		testutils.AssertNotNil(t, oldState)
		testutils.AssertEqual(t, "0", *oldState)
		testutils.AssertEqual(t, "1", newState)
		testutils.AssertEqual(t, 0, len(notCreated))
		testutils.AssertEqual(t, 1, len(created))

		//the creation id is registered for later calls in the same request
		serverID, ok := createdIDs.Resolve("a")
		testutils.AssertTrue(t, ok)

		_, _, list, _, mErr := mbDT.Get(ctx, ja, accountId, []basetypes.Id{serverID}, nil, nil)
		testutils.AssertNil(t, mErr)
		testutils.AssertEqual(t, 1, len(list))
		item, ok := list[0].(jaccount.Mailbox)
		testutils.AssertTrue(t, ok)
		testutils.AssertEqual(t, "Projects", item.Name)
	})

	t.Run("set custom params carry onDestroyRemoveEmails", func(t *testing.T) {
		params := mbDT.CustomSetRequestParams()
		err := json.Unmarshal([]byte(`{"accountId":"x","onDestroyRemoveEmails":true}`), params)
		testutils.RequireNoError(t, err)
		setParams, ok := params.(*MailboxSetRequestParams)
		testutils.AssertTrue(t, ok)
		testutils.AssertTrue(t, setParams.OnDestroyRemoveEmails)
	})

	t.Run("changes", func(t *testing.T) {
		ja := newTestJAccount(t, user)

		create := map[basetypes.Id]json.RawMessage{
			"a": json.RawMessage(`{"name":"Projects"}`),
		}
		_, _, _, created, _, _, _, _, _, mErr := mbDT.Set(ctx, ja, accountId, nil, create, nil, nil, basetypes.NewCreatedIDs(), nil)
		testutils.AssertNil(t, mErr)
		mbID := created["a"].(jaccount.MailboxCreated).Id

		retAccountId, oldState, newState, hasMore, createdIDs, _, _, mErr := mbDT.Changes(ctx, ja, accountId, "0", nil)
		testutils.AssertNil(t, mErr)
		testutils.AssertEqual(t, accountId, retAccountId)
		testutils.AssertEqual(t, "0", oldState)
		testutils.AssertEqual(t, "1", newState)
		testutils.AssertTrue(t, !hasMore)
		testutils.AssertEqual(t, 1, len(createdIDs))
		testutils.AssertEqual(t, mbID, createdIDs[0])
	})
}

func TestEmailDT(t *testing.T) {
	ctx := context.Background()
	const user = "mjl@example.org"
	const accountId = basetypes.Id(user)

	emailDT := NewEmail(mlog.New("mailcapability", nil))

	t.Run("query returns empty ids not null", func(t *testing.T) {
		ja := newTestJAccount(t, user)

		_, _, _, _, ids, _, retLimit, mErr := emailDT.Query(ctx, ja, accountId, nil, nil, 0, nil, 0, nil, false, nil)
		testutils.AssertNil(t, mErr)
		testutils.AssertNotNil(t, ids)
		testutils.AssertEqual(t, 0, len(ids))
		testutils.AssertEqual(t, basetypes.Uint(DefaultMaxQueryLimit), retLimit)
	})

	t.Run("query limit is capped", func(t *testing.T) {
		ja := newTestJAccount(t, user)

		tooLarge := basetypes.Uint(DefaultMaxQueryLimit + 1)
		_, _, _, _, _, _, retLimit, mErr := emailDT.Query(ctx, ja, accountId, nil, nil, 0, nil, 0, &tooLarge, false, nil)
		testutils.AssertNil(t, mErr)
		testutils.AssertEqual(t, basetypes.Uint(DefaultMaxQueryLimit), retLimit)
	})

	t.Run("get returns empty slices not null", func(t *testing.T) {
		ja := newTestJAccount(t, user)

		_, state, list, notFound, mErr := emailDT.Get(ctx, ja, accountId, nil, nil, nil)
		testutils.AssertNil(t, mErr)
		testutils.AssertEqual(t, "0", state)
		testutils.AssertNotNil(t, list)
		testutils.AssertEqual(t, 0, len(list))
		testutils.AssertNotNil(t, notFound)
		testutils.AssertEqual(t, 0, len(notFound))
	})
}
