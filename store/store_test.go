package store

import (
	"context"
	"testing"

	"github.com/mjl-/bstore"

	"github.com/jmapd/jmapd/jmapserver/testutils"
)

func TestRights(t *testing.T) {
	t.Run("valid right", func(t *testing.T) {
		for _, r := range []string{"l", "r", "s", "w", "i", "p", "e", "t", "x", "a"} {
			testutils.AssertTrue(t, ValidRight(r))
		}
		testutils.AssertTrue(t, !ValidRight(""))
		testutils.AssertTrue(t, !ValidRight("z"))
		testutils.AssertTrue(t, !ValidRight("lr"))
	})

	t.Run("owner has all rights", func(t *testing.T) {
		mb := Mailbox{Owner: "mjl@example.org"}
		for _, r := range KnownRights {
			testutils.AssertTrue(t, mb.HasRight("mjl@example.org", r))
		}
		testutils.AssertTrue(t, mb.Visible("mjl@example.org"))
	})

	t.Run("granted rights only", func(t *testing.T) {
		mb := Mailbox{
			Owner:  "mjl@example.org",
			Rights: map[string]string{"other@example.org": "lr"},
		}
		testutils.AssertTrue(t, mb.HasRight("other@example.org", RightLookup))
		testutils.AssertTrue(t, mb.HasRight("other@example.org", RightRead))
		testutils.AssertTrue(t, !mb.HasRight("other@example.org", RightWrite))
		testutils.AssertTrue(t, mb.Visible("other@example.org"))
		testutils.AssertTrue(t, !mb.Visible("stranger@example.org"))
	})
}

func TestWordSearch(t *testing.T) {
	t.Run("fold is caseless", func(t *testing.T) {
		testutils.AssertEqual(t, Fold("Ördered"), Fold("öRDERED"))
	})

	t.Run("all words must match", func(t *testing.T) {
		ws := PrepareWordSearch([]string{"invoice", "january"}, nil)
		testutils.AssertTrue(t, ws.MatchText("Invoice for January"))
		testutils.AssertTrue(t, !ws.MatchText("Invoice for February"))
	})

	t.Run("not words exclude", func(t *testing.T) {
		ws := PrepareWordSearch([]string{"invoice"}, []string{"draft"})
		testutils.AssertTrue(t, ws.MatchText("invoice 42"))
		testutils.AssertTrue(t, !ws.MatchText("DRAFT invoice 42"))
	})

	t.Run("empty search matches everything", func(t *testing.T) {
		ws := PrepareWordSearch(nil, nil)
		testutils.AssertTrue(t, ws.MatchText(""))
		testutils.AssertTrue(t, ws.MatchText("anything"))
	})
}

func TestPathComponents(t *testing.T) {
	byID := map[int64]Mailbox{
		1: {ID: 1, Name: "Projects"},
		2: {ID: 2, Name: "2024", ParentID: 1},
		3: {ID: 3, Name: "Q1", ParentID: 2},
	}

	t.Run("top level", func(t *testing.T) {
		names := PathComponents(byID[1], byID)
		testutils.AssertEqual(t, 1, len(names))
		testutils.AssertEqual(t, "Projects", names[0])
	})

	t.Run("nested", func(t *testing.T) {
		names := PathComponents(byID[3], byID)
		testutils.AssertEqual(t, 3, len(names))
		testutils.AssertEqual(t, "Projects", names[0])
		testutils.AssertEqual(t, "2024", names[1])
		testutils.AssertEqual(t, "Q1", names[2])
	})

	t.Run("missing parent stops the chain", func(t *testing.T) {
		names := PathComponents(Mailbox{Name: "Orphan", ParentID: 99}, byID)
		testutils.AssertEqual(t, 1, len(names))
		testutils.AssertEqual(t, "Orphan", names[0])
	})
}

func TestModSeq(t *testing.T) {
	ctx := context.Background()
	tdb, err := testutils.GetTestDB(DBTypes...)
	testutils.RequireNoError(t, err)
	defer tdb.Close()

	state, err := MailboxState(ctx, tdb.DB)
	testutils.RequireNoError(t, err)
	testutils.AssertEqual(t, "0", state)

	err = tdb.DB.Write(ctx, func(tx *bstore.Tx) error {
		modseq, err := NextModSeq(tx)
		if err != nil {
			return err
		}
		testutils.AssertEqual(t, int64(1), modseq)
		modseq, err = NextModSeq(tx)
		if err != nil {
			return err
		}
		testutils.AssertEqual(t, int64(2), modseq)
		return nil
	})
	testutils.RequireNoError(t, err)

	state, err = MailboxState(ctx, tdb.DB)
	testutils.RequireNoError(t, err)
	testutils.AssertEqual(t, "2", state)
}

func TestSubscriptionKey(t *testing.T) {
	testutils.AssertEqual(t, "mjl@example.org/4", SubscriptionKey("mjl@example.org", 4))
}
