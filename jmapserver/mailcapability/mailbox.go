package mailcapability

import (
	"context"
	"encoding/json"

	"github.com/jmapd/jmapd/jmapserver/basetypes"
	"github.com/jmapd/jmapd/jmapserver/jaccount"
	"github.com/jmapd/jmapd/jmapserver/mlevelerrors"
	"github.com/jmapd/jmapd/mlog"
)

type MailboxDT struct {
	mlog mlog.Log
}

func NewMailbox(mlog mlog.Log) MailboxDT {
	return MailboxDT{
		mlog: mlog,
	}
}

func (mb MailboxDT) Name() string {
	return "Mailbox"
}

// https://datatracker.ietf.org/doc/html/rfc8620#section-5.1
func (mb MailboxDT) Get(ctx context.Context, jaccount jaccount.JAccounter, accountId basetypes.Id, ids []basetypes.Id, properties []string, customParams any) (retAccountId basetypes.Id, state string, list []interface{}, notFound []basetypes.Id, mErr *mlevelerrors.MethodLevelError) {
	mbs, notFoundIds, state, mErr := jaccount.GetMailboxes(ctx, ids)
	if mErr != nil {
		return accountId, "", nil, nil, mErr
	}

	var result []any
	for _, mailbox := range mbs {
		result = append(result, mailbox)
	}

	if notFoundIds == nil {
		//notFound cannot be null
		notFoundIds = []basetypes.Id{}
	}

	return accountId, state, result, notFoundIds, nil
}

func (mb MailboxDT) CustomGetRequestParams() any {
	return nil
}

// https://datatracker.ietf.org/doc/html/rfc8620#section-5.2
func (mb MailboxDT) Changes(ctx context.Context, jaccount jaccount.JAccounter, accountId basetypes.Id, sinceState string, maxChanges *basetypes.Uint) (retAccountId basetypes.Id, oldState string, newState string, hasMoreChanges bool, created, updated, destroyed []basetypes.Id, mErr *mlevelerrors.MethodLevelError) {
	oldState, newState, hasMoreChanges, created, updated, destroyed, mErr = jaccount.MailboxChanges(ctx, sinceState, maxChanges)
	return accountId, oldState, newState, hasMoreChanges, created, updated, destroyed, mErr
}

// MailboxSetRequestParams carries the Mailbox/set arguments beyond the
// standard set arguments.
type MailboxSetRequestParams struct {
	//when true, a destroy of a non-empty mailbox removes the contained
	//messages instead of failing with mailboxHasEmail
	OnDestroyRemoveEmails bool `json:"onDestroyRemoveEmails"`
}

func (mb MailboxDT) CustomSetRequestParams() any {
	return &MailboxSetRequestParams{}
}

// https://datatracker.ietf.org/doc/html/rfc8620#section-5.3
func (mb MailboxDT) Set(ctx context.Context, jaccount jaccount.JAccounter, accountId basetypes.Id, ifInState *string, create map[basetypes.Id]json.RawMessage, update map[basetypes.Id]basetypes.PatchObject, destroy []basetypes.Id, createdIDs *basetypes.CreatedIDs, customParams any) (retAccountId basetypes.Id, oldState *string, newState string, created, updated map[basetypes.Id]any, destroyed []basetypes.Id, notCreated, notUpdated, notDestroyed map[basetypes.Id]mlevelerrors.SetError, mErr *mlevelerrors.MethodLevelError) {
	var onDestroyRemoveEmails bool
	if params, ok := customParams.(*MailboxSetRequestParams); ok && params != nil {
		onDestroyRemoveEmails = params.OnDestroyRemoveEmails
	}

	oldStateStr, newState, created, updated, destroyed, notCreated, notUpdated, notDestroyed, mErr := jaccount.SetMailboxes(ctx, ifInState, create, update, destroy, createdIDs, onDestroyRemoveEmails)
	if mErr != nil {
		return accountId, nil, "", nil, nil, nil, nil, nil, nil, mErr
	}
	return accountId, &oldStateStr, newState, created, updated, destroyed, notCreated, notUpdated, notDestroyed, nil
}
