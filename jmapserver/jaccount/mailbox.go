package jaccount

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/mjl-/bstore"

	"github.com/jmapd/jmapd/jmapserver/basetypes"
	"github.com/jmapd/jmapd/jmapserver/mlevelerrors"
	"github.com/jmapd/jmapd/store"
)

// NamespacePersonal is the namespace of mailboxes owned by the viewing user.
// Mailboxes shared by another account get namespace "Delegated[<owner>]".
const NamespacePersonal = "Personal"

// Mailbox is the JMAP projection of a stored mailbox, evaluated for one
// viewing user.
type Mailbox struct {
	Id            basetypes.Id        `json:"id"`
	Name          string              `json:"name"`
	ParentId      *basetypes.Id       `json:"parentId"`
	Role          string              `json:"role,omitempty"`
	SortOrder     basetypes.Uint      `json:"sortOrder"`
	TotalEmails   basetypes.Uint      `json:"totalEmails"`
	UnreadEmails  basetypes.Uint      `json:"unreadEmails"`
	TotalThreads  basetypes.Uint      `json:"totalThreads"`
	UnreadThreads basetypes.Uint      `json:"unreadThreads"`
	MyRights      MailboxRights       `json:"myRights"`
	IsSubscribed  bool                `json:"isSubscribed"`
	Namespace     string              `json:"namespace"`
	SharedWith    map[string][]string `json:"sharedWith,omitempty"`
}

type MailboxRights struct {
	MayReadItems   bool `json:"mayReadItems"`
	MayAddItems    bool `json:"mayAddItems"`
	MayRemoveItems bool `json:"mayRemoveItems"`
	MaySetSeen     bool `json:"maySetSeen"`
	MaySetKeywords bool `json:"maySetKeywords"`
	MayCreateChild bool `json:"mayCreateChild"`
	MayRename      bool `json:"mayRename"`
	MayDelete      bool `json:"mayDelete"`
	MaySubmit      bool `json:"maySubmit"`
}

// MailboxCreated holds the server-set properties returned for a successful
// create in Mailbox/set.
type MailboxCreated struct {
	Id            basetypes.Id   `json:"id"`
	Role          string         `json:"role,omitempty"`
	SortOrder     basetypes.Uint `json:"sortOrder"`
	TotalEmails   basetypes.Uint `json:"totalEmails"`
	UnreadEmails  basetypes.Uint `json:"unreadEmails"`
	TotalThreads  basetypes.Uint `json:"totalThreads"`
	UnreadThreads basetypes.Uint `json:"unreadThreads"`
	MyRights      MailboxRights  `json:"myRights"`
	IsSubscribed  bool           `json:"isSubscribed"`
	Namespace     string         `json:"namespace"`
}

func rightsForUser(mb store.Mailbox, user string) MailboxRights {
	owner := user == mb.Owner
	return MailboxRights{
		MayReadItems:   mb.HasRight(user, store.RightRead),
		MayAddItems:    mb.HasRight(user, store.RightInsert),
		MayRemoveItems: mb.HasRight(user, store.RightExpunge) && mb.HasRight(user, store.RightDeleteMessages),
		MaySetSeen:     mb.HasRight(user, store.RightKeepSeen),
		MaySetKeywords: mb.HasRight(user, store.RightWrite),
		MayCreateChild: mb.HasRight(user, store.RightInsert),
		MayRename:      owner && mb.Role == "",
		MayDelete:      owner && mb.Role == "",
		MaySubmit:      mb.HasRight(user, store.RightPost),
	}
}

func namespaceFor(mb store.Mailbox, user string) string {
	if mb.Owner == user {
		return NamespacePersonal
	}
	return fmt.Sprintf("Delegated[%s]", mb.Owner)
}

func sharedWithFor(mb store.Mailbox, user string) map[string][]string {
	// Only the owner gets to see whom a mailbox is shared with.
	if mb.Owner != user || len(mb.Rights) == 0 {
		return nil
	}
	result := map[string][]string{}
	for principal, rights := range mb.Rights {
		var codes []string
		for _, r := range rights {
			codes = append(codes, string(r))
		}
		result[principal] = codes
	}
	return result
}

// JMailbox is a stored mailbox together with the viewing user's subscription.
type JMailbox struct {
	Mb         store.Mailbox
	Subscribed bool
}

func NewJMailbox(mb store.Mailbox, subscribed bool) JMailbox {
	return JMailbox{
		Mb:         mb,
		Subscribed: subscribed,
	}
}

func (mb JMailbox) ID() string {
	return fmt.Sprintf("%d", mb.Mb.ID)
}

// JMailboxes is a set of mailboxes with the lookups Mailbox/get and
// Mailbox/set need on the hierarchy.
type JMailboxes struct {
	Mbs  []JMailbox
	byID map[int64]store.Mailbox
}

func NewJMailboxes(mbs ...JMailbox) JMailboxes {
	jmbs := JMailboxes{
		byID: map[int64]store.Mailbox{},
	}
	for _, mb := range mbs {
		jmbs.AddMailbox(mb)
	}
	return jmbs
}

func (jmbs *JMailboxes) AddMailbox(mb JMailbox) {
	jmbs.Mbs = append(jmbs.Mbs, mb)
	jmbs.byID[mb.Mb.ID] = mb.Mb
}

func (jmbs JMailboxes) ByID(id int64) (store.Mailbox, bool) {
	mb, ok := jmbs.byID[id]
	return mb, ok
}

// ParentID returns the id of the parent mailbox, nil for a top-level mailbox.
func (jmbs JMailboxes) ParentID(mb JMailbox) *basetypes.Id {
	if mb.Mb.ParentID == 0 {
		return nil
	}
	pID := basetypes.NewIdFromInt64(mb.Mb.ParentID)
	return &pID
}

// Path returns the full path of mb, segments joined with the hierarchy
// delimiter.
func (jmbs JMailboxes) Path(mb store.Mailbox) string {
	return strings.Join(store.PathComponents(mb, jmbs.byID), store.MailboxHierarchyDelimiter)
}

// HasChildren reports whether any mailbox has mb as its parent.
func (jmbs JMailboxes) HasChildren(mb store.Mailbox) bool {
	for _, other := range jmbs.Mbs {
		if other.Mb.ParentID == mb.ID {
			return true
		}
	}
	return false
}

// IsAncestor reports whether ancestor is on the parent chain of mb.
func (jmbs JMailboxes) IsAncestor(ancestor, mb store.Mailbox) bool {
	for mb.ParentID != 0 {
		if mb.ParentID == ancestor.ID {
			return true
		}
		parent, ok := jmbs.byID[mb.ParentID]
		if !ok {
			return false
		}
		mb = parent
	}
	return false
}

// mailboxCounts are the message counters of one mailbox.
type mailboxCounts struct {
	TotalEmails   uint
	UnreadEmails  uint
	TotalThreads  uint
	UnreadThreads uint
}

func countsFor(ctx context.Context, db *bstore.DB, mailboxID int64) (mailboxCounts, error) {
	var counts mailboxCounts

	msgs, err := bstore.QueryDB[store.Message](ctx, db).
		FilterNonzero(store.Message{MailboxID: mailboxID}).
		FilterEqual("Expunged", false).
		List()
	if err != nil {
		return counts, fmt.Errorf("listing messages: %w", err)
	}

	threads := map[int64]bool{}
	unreadThreads := map[int64]bool{}
	for _, m := range msgs {
		counts.TotalEmails++
		threads[m.ThreadID] = true
		if !m.Seen {
			counts.UnreadEmails++
			unreadThreads[m.ThreadID] = true
		}
	}
	counts.TotalThreads = uint(len(threads))
	counts.UnreadThreads = uint(len(unreadThreads))
	return counts, nil
}

// visibleMailboxes returns all mailboxes the user may see, with the user's
// subscriptions resolved.
func (ja *JAccount) visibleMailboxes(ctx context.Context) (JMailboxes, error) {
	mbs, err := bstore.QueryDB[store.Mailbox](ctx, ja.DB()).
		SortAsc("ID").
		List()
	if err != nil {
		return JMailboxes{}, fmt.Errorf("listing mailboxes: %w", err)
	}

	subs, err := bstore.QueryDB[store.Subscription](ctx, ja.DB()).
		FilterNonzero(store.Subscription{User: ja.user}).
		List()
	if err != nil {
		return JMailboxes{}, fmt.Errorf("listing subscriptions: %w", err)
	}
	subscribed := map[int64]bool{}
	for _, sub := range subs {
		subscribed[sub.MailboxID] = true
	}

	jmbs := NewJMailboxes()
	for _, mb := range mbs {
		if !mb.Visible(ja.user) {
			continue
		}
		jmbs.AddMailbox(NewJMailbox(mb, subscribed[mb.ID]))
	}
	return jmbs, nil
}

func (ja *JAccount) mailboxProjection(ctx context.Context, jmbs JMailboxes, jmb JMailbox) (Mailbox, error) {
	counts, err := countsFor(ctx, ja.DB(), jmb.Mb.ID)
	if err != nil {
		return Mailbox{}, err
	}

	return Mailbox{
		Id:            basetypes.Id(jmb.ID()),
		Name:          jmb.Mb.Name,
		ParentId:      jmbs.ParentID(jmb),
		Role:          jmb.Mb.Role,
		SortOrder:     basetypes.Uint(jmb.Mb.SortOrder),
		TotalEmails:   basetypes.Uint(counts.TotalEmails),
		UnreadEmails:  basetypes.Uint(counts.UnreadEmails),
		TotalThreads:  basetypes.Uint(counts.TotalThreads),
		UnreadThreads: basetypes.Uint(counts.UnreadThreads),
		MyRights:      rightsForUser(jmb.Mb, ja.user),
		IsSubscribed:  jmb.Subscribed,
		Namespace:     namespaceFor(jmb.Mb, ja.user),
		SharedWith:    sharedWithFor(jmb.Mb, ja.user),
	}, nil
}

// GetMailboxes returns the mailboxes visible to the user. With a non-empty
// ids, only those mailboxes are returned and unknown ids are reported in
// notFound.
func (ja *JAccount) GetMailboxes(ctx context.Context, ids []basetypes.Id) (result []Mailbox, notFound []basetypes.Id, state string, mErr *mlevelerrors.MethodLevelError) {
	state, err := store.MailboxState(ctx, ja.DB())
	if err != nil {
		ja.mlog.Errorx("getting mailbox state", err)
		return nil, nil, "", mlevelerrors.NewMethodLevelErrorServerFail()
	}

	jmbs, err := ja.visibleMailboxes(ctx)
	if err != nil {
		ja.mlog.Errorx("listing mailboxes", err)
		return nil, nil, "", mlevelerrors.NewMethodLevelErrorServerFail()
	}

	if len(ids) == 0 {
		for _, jmb := range jmbs.Mbs {
			item, err := ja.mailboxProjection(ctx, jmbs, jmb)
			if err != nil {
				ja.mlog.Errorx("projecting mailbox", err, slog.String("mailbox", jmb.ID()))
				return nil, nil, "", mlevelerrors.NewMethodLevelErrorServerFail()
			}
			result = append(result, item)
		}
		return result, nil, state, nil
	}

	for _, id := range ids {
		idInt, err := id.Int64()
		if err != nil {
			notFound = append(notFound, id)
			continue
		}
		mb, ok := jmbs.ByID(idInt)
		if !ok {
			notFound = append(notFound, id)
			continue
		}
		jmb := NewJMailbox(mb, false)
		for _, candidate := range jmbs.Mbs {
			if candidate.Mb.ID == idInt {
				jmb = candidate
				break
			}
		}
		item, err := ja.mailboxProjection(ctx, jmbs, jmb)
		if err != nil {
			ja.mlog.Errorx("projecting mailbox", err, slog.String("mailbox", jmb.ID()))
			return nil, nil, "", mlevelerrors.NewMethodLevelErrorServerFail()
		}
		result = append(result, item)
	}
	return result, notFound, state, nil
}

type mailboxChange struct {
	id     int64
	modSeq int64
	// 0 created, 1 updated, 2 destroyed
	kind int
}

// MailboxChanges returns the mailbox ids created, updated and destroyed since
// sinceState.
func (ja *JAccount) MailboxChanges(ctx context.Context, sinceState string, maxChanges *basetypes.Uint) (oldState, newState string, hasMoreChanges bool, created, updated, destroyed []basetypes.Id, mErr *mlevelerrors.MethodLevelError) {
	since, err := strconv.ParseInt(sinceState, 10, 64)
	if err != nil {
		return "", "", false, nil, nil, nil, mlevelerrors.NewMethodLevelErrorCannotCalculateChanges()
	}

	state, err := store.MailboxState(ctx, ja.DB())
	if err != nil {
		ja.mlog.Errorx("getting mailbox state", err)
		return "", "", false, nil, nil, nil, mlevelerrors.NewMethodLevelErrorServerFail()
	}

	jmbs, err := ja.visibleMailboxes(ctx)
	if err != nil {
		ja.mlog.Errorx("listing mailboxes", err)
		return "", "", false, nil, nil, nil, mlevelerrors.NewMethodLevelErrorServerFail()
	}

	var changes []mailboxChange
	for _, jmb := range jmbs.Mbs {
		if jmb.Mb.CreateSeq > since {
			changes = append(changes, mailboxChange{id: jmb.Mb.ID, modSeq: jmb.Mb.ModSeq, kind: 0})
		} else if jmb.Mb.ModSeq > since {
			changes = append(changes, mailboxChange{id: jmb.Mb.ID, modSeq: jmb.Mb.ModSeq, kind: 1})
		}
	}

	tombstones, err := bstore.QueryDB[store.MailboxTombstone](ctx, ja.DB()).
		FilterGreater("ModSeq", since).
		List()
	if err != nil {
		ja.mlog.Errorx("listing tombstones", err)
		return "", "", false, nil, nil, nil, mlevelerrors.NewMethodLevelErrorServerFail()
	}
	for _, ts := range tombstones {
		changes = append(changes, mailboxChange{id: ts.ID, modSeq: ts.ModSeq, kind: 2})
	}

	sort.Slice(changes, func(i, j int) bool {
		return changes[i].modSeq < changes[j].modSeq
	})

	newState = state
	if maxChanges != nil && uint64(len(changes)) > uint64(*maxChanges) && *maxChanges > 0 {
		changes = changes[:*maxChanges]
		hasMoreChanges = true
		newState = fmt.Sprintf("%d", changes[len(changes)-1].modSeq)
	}

	for _, c := range changes {
		id := basetypes.NewIdFromInt64(c.id)
		switch c.kind {
		case 0:
			created = append(created, id)
		case 1:
			updated = append(updated, id)
		case 2:
			destroyed = append(destroyed, id)
		}
	}
	return sinceState, newState, hasMoreChanges, created, updated, destroyed, nil
}
