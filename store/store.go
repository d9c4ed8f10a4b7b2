// Package store implements the mailbox store: mailboxes, subscriptions and
// messages in a bstore database, with a monotonically advancing modseq used as
// the JMAP state token for the Mailbox datatype.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mjl-/bstore"
)

// MailboxHierarchyDelimiter separates the segments of a full mailbox path.
// Mailbox names themselves must not contain it.
const MailboxHierarchyDelimiter = "."

// MaxMailboxNameLength is the maximum length of a single mailbox name segment.
const MaxMailboxNameLength = 200

// DefaultSortOrder is assigned to newly created mailboxes.
const DefaultSortOrder = 1000

// Mailbox is a mailbox in the hierarchy of one owning account. A mailbox is
// visible to other users when its Rights grant them the lookup right.
type Mailbox struct {
	ID int64

	// Single path segment, without hierarchy delimiter. The full path follows from
	// the ParentID chain.
	Name string `bstore:"nonzero"`

	// Zero for a top-level mailbox.
	ParentID int64 `bstore:"index"`

	// Special-use role: Inbox, Archive, Draft, Junk, Sent, Trash. Empty for a
	// regular mailbox. Mailboxes with a role cannot be renamed, moved or destroyed.
	Role string

	// Account that owns the mailbox. Viewers with a different account see this
	// mailbox in the delegated namespace.
	Owner string `bstore:"nonzero,index"`

	SortOrder uint32

	// Rights per principal, as a string of single-character right codes, see
	// rights.go. The owner implicitly has all rights.
	Rights map[string]string

	// Bumped on every change to this mailbox, for Mailbox/changes.
	ModSeq    int64
	CreateSeq int64
}

// Subscription links a user to a mailbox. Subscriptions are separate from
// existence and rights of mailboxes.
type Subscription struct {
	// Key is "<user>/<mailboxID>".
	Key       string
	User      string `bstore:"nonzero,index"`
	MailboxID int64  `bstore:"nonzero,index"`
}

// SubscriptionKey returns the primary key for a Subscription record.
func SubscriptionKey(user string, mailboxID int64) string {
	return fmt.Sprintf("%s/%d", user, mailboxID)
}

// Flags are the system keywords of a message.
type Flags struct {
	Seen      bool
	Answered  bool
	Flagged   bool
	Forwarded bool
	Junk      bool
	Notjunk   bool
	Draft     bool
	Phishing  bool
	MDNSent   bool
}

// Message is a message in a mailbox. Only the metadata JMAP needs is stored.
type Message struct {
	ID        int64
	MailboxID int64 `bstore:"nonzero,index"`

	Size     int64
	Received time.Time

	Flags
	// Non-system keywords, lower case atoms.
	Keywords []string

	Subject       string
	HasAttachment bool

	ThreadID int64

	ModSeq    int64
	CreateSeq int64

	// Messages marked Deleted/Expunged must not be visible through JMAP.
	Deleted  bool
	Expunged bool
}

// State holds the modseq for a datatype. A single record per datatype,
// keyed by datatype name.
type State struct {
	Datatype string
	ModSeq   int64
}

// StateMailbox is the datatype key for the mailbox state record.
const StateMailbox = "Mailbox"

// MailboxTombstone records a destroyed mailbox, so Mailbox/changes can report
// the id as destroyed to clients synchronizing from an older state.
type MailboxTombstone struct {
	ID     int64
	ModSeq int64 `bstore:"nonzero"`
}

// DBTypes are all types stored in the account database.
var DBTypes = []any{Mailbox{}, Subscription{}, Message{}, State{}, MailboxTombstone{}}

// Account is an open account database.
type Account struct {
	Name string
	DB   *bstore.DB
}

// OpenAccount opens the database for an account, creating dir and database if
// needed.
func OpenAccount(ctx context.Context, dir, name string) (*Account, error) {
	if err := os.MkdirAll(filepath.Join(dir, name), 0770); err != nil {
		return nil, fmt.Errorf("creating account directory: %w", err)
	}
	dbpath := filepath.Join(dir, name, "jmapd.db")
	db, err := bstore.Open(ctx, dbpath, &bstore.Options{Timeout: 5 * time.Second, Perm: 0660}, DBTypes...)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &Account{Name: name, DB: db}, nil
}

func (a *Account) Close() error {
	return a.DB.Close()
}

// MailboxState returns the current mailbox state token.
func MailboxState(ctx context.Context, db *bstore.DB) (string, error) {
	st := State{Datatype: StateMailbox}
	err := db.Get(ctx, &st)
	if err != nil && err != bstore.ErrAbsent {
		return "", err
	}
	return fmt.Sprintf("%d", st.ModSeq), nil
}

// NextModSeq bumps and returns the mailbox modseq within tx. Callers assign
// the returned value to the records they change.
func NextModSeq(tx *bstore.Tx) (int64, error) {
	st := State{Datatype: StateMailbox}
	err := tx.Get(&st)
	if err == bstore.ErrAbsent {
		st.ModSeq = 1
		return st.ModSeq, tx.Insert(&st)
	} else if err != nil {
		return 0, err
	}
	st.ModSeq++
	return st.ModSeq, tx.Update(&st)
}

// PathComponents returns the names from the root to mb, resolving the parent
// chain through byID.
func PathComponents(mb Mailbox, byID map[int64]Mailbox) []string {
	var names []string
	for {
		names = append([]string{mb.Name}, names...)
		if mb.ParentID == 0 {
			return names
		}
		parent, ok := byID[mb.ParentID]
		if !ok {
			return names
		}
		mb = parent
	}
}
