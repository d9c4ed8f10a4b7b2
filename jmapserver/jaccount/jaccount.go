// Package jaccount adapts an account store to the JMAP datatypes. It serves
// the JMAP specific projections of mailboxes and messages and implements the
// Mailbox/set semantics over the account database.
package jaccount

import (
	"context"
	"encoding/json"

	"github.com/mjl-/bstore"

	"github.com/jmapd/jmapd/jmapserver/basetypes"
	"github.com/jmapd/jmapd/jmapserver/mlevelerrors"
	"github.com/jmapd/jmapd/mlog"
	"github.com/jmapd/jmapd/store"
)

type JAccounter interface {
	Close() error
	DB() *bstore.DB
	Account() *store.Account

	//User is the authenticated user the request is evaluated for. Mailboxes
	//owned by other accounts are only visible when shared with this user.
	User() string

	GetMailboxes(ctx context.Context, ids []basetypes.Id) (result []Mailbox, notFound []basetypes.Id, state string, mErr *mlevelerrors.MethodLevelError)
	MailboxChanges(ctx context.Context, sinceState string, maxChanges *basetypes.Uint) (oldState, newState string, hasMoreChanges bool, created, updated, destroyed []basetypes.Id, mErr *mlevelerrors.MethodLevelError)
	SetMailboxes(ctx context.Context, ifInState *string, create map[basetypes.Id]json.RawMessage, update map[basetypes.Id]basetypes.PatchObject, destroy []basetypes.Id, createdIDs *basetypes.CreatedIDs, onDestroyRemoveEmails bool) (oldState, newState string, created, updated map[basetypes.Id]any, destroyed []basetypes.Id, notCreated, notUpdated, notDestroyed map[basetypes.Id]mlevelerrors.SetError, mErr *mlevelerrors.MethodLevelError)

	QueryEmail(ctx context.Context, filter *basetypes.Filter, sortComps []basetypes.Comparator, position basetypes.Int, limit *basetypes.Uint, calculateTotal bool) (state string, canCalculateChanges bool, retPosition basetypes.Int, ids []basetypes.Id, total basetypes.Uint, mErr *mlevelerrors.MethodLevelError)
	GetEmail(ctx context.Context, ids []basetypes.Id) (result []Email, notFound []basetypes.Id, state string, mErr *mlevelerrors.MethodLevelError)
}

var _ JAccounter = &JAccount{}

type JAccount struct {
	mAccount *store.Account
	user     string
	mlog     mlog.Log
}

func NewJAccount(mAccount *store.Account, user string, mlog mlog.Log) *JAccount {
	return &JAccount{
		mAccount: mAccount,
		user:     user,
		mlog:     mlog,
	}
}

func (ja *JAccount) Close() error {
	return ja.mAccount.Close()
}

func (ja *JAccount) DB() *bstore.DB {
	return ja.mAccount.DB
}

func (ja *JAccount) Account() *store.Account {
	return ja.mAccount
}

func (ja *JAccount) User() string {
	return ja.user
}
