package mailcapability

import (
	"context"

	"github.com/jmapd/jmapd/jmapserver/basetypes"
	"github.com/jmapd/jmapd/jmapserver/jaccount"
	"github.com/jmapd/jmapd/jmapserver/mlevelerrors"
	"github.com/jmapd/jmapd/mlog"
)

// DefaultMaxQueryLimit caps the number of ids returned by Email/query.
const DefaultMaxQueryLimit = 256

type EmailDT struct {
	//maxQueryLimit is the maximum number of emails returned for a query request
	maxQueryLimit basetypes.Uint
	mlog          mlog.Log
}

func NewEmail(mlog mlog.Log) EmailDT {
	return EmailDT{
		maxQueryLimit: DefaultMaxQueryLimit,
		mlog:          mlog,
	}
}

func (m EmailDT) Name() string {
	return "Email"
}

// https://datatracker.ietf.org/doc/html/rfc8620#section-5.5
func (m EmailDT) Query(ctx context.Context, jaccount jaccount.JAccounter, accountId basetypes.Id, filter *basetypes.Filter, sort []basetypes.Comparator, position basetypes.Int, anchor *basetypes.Id, anchorOffset basetypes.Int, limit *basetypes.Uint, calculateTotal bool, customParams any) (retAccountId basetypes.Id, queryState string, canCalculateChanges bool, retPosition basetypes.Int, ids []basetypes.Id, total basetypes.Uint, retLimit basetypes.Uint, mErr *mlevelerrors.MethodLevelError) {

	adjustedLimit := m.maxQueryLimit
	if limit != nil && *limit < adjustedLimit {
		adjustedLimit = *limit
	}

	state, canCalculateChanges, retPosition, ids, total, mErr := jaccount.QueryEmail(ctx, filter, sort, position, &adjustedLimit, calculateTotal)

	if ids == nil {
		//send an empty array instead of a null value to not break the current way of resolving request references
		ids = []basetypes.Id{}
	}

	return accountId, state, canCalculateChanges, retPosition, ids, total, adjustedLimit, mErr
}

type CustomQueryRequestParams struct {
	CollapseThreads bool `json:"collapseThreads"`
}

func (m EmailDT) CustomQueryRequestParams() any {
	return &CustomQueryRequestParams{}
}

// https://datatracker.ietf.org/doc/html/rfc8620#section-5.1
func (m EmailDT) Get(ctx context.Context, jaccount jaccount.JAccounter, accountId basetypes.Id, ids []basetypes.Id, properties []string, customParams any) (retAccountId basetypes.Id, state string, list []interface{}, notFound []basetypes.Id, mErr *mlevelerrors.MethodLevelError) {
	result, notFound, state, mErr := jaccount.GetEmail(ctx, ids)
	if mErr != nil {
		return accountId, "", nil, nil, mErr
	}

	for _, r := range result {
		list = append(list, r)
	}

	if list == nil {
		//always return an empty slice
		list = []interface{}{}
	}

	if notFound == nil {
		//send an empty array instead of a null value to not break the current way of resolving request references
		notFound = []basetypes.Id{}
	}

	return accountId, state, list, notFound, nil
}

func (m EmailDT) CustomGetRequestParams() any {
	return nil
}
