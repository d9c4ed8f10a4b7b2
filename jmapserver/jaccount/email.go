package jaccount

import (
	"context"
	"fmt"
	"sort"

	"github.com/mjl-/bstore"

	"github.com/jmapd/jmapd/jmapserver/basetypes"
	"github.com/jmapd/jmapd/jmapserver/mlevelerrors"
	"github.com/jmapd/jmapd/store"
)

// Email is the metadata projection of a stored message.
type Email struct {
	Id            basetypes.Id          `json:"id"`
	MailboxIds    map[basetypes.Id]bool `json:"mailboxIds"`
	Keywords      map[string]bool       `json:"keywords"`
	Size          basetypes.Uint        `json:"size"`
	ReceivedAt    basetypes.UTCDate     `json:"receivedAt"`
	Subject       string                `json:"subject"`
	HasAttachment bool                  `json:"hasAttachment"`
	ThreadId      basetypes.Id          `json:"threadId"`
}

func keywordsFor(m store.Message) map[string]bool {
	keywords := map[string]bool{}
	if m.Seen {
		keywords["$seen"] = true
	}
	if m.Answered {
		keywords["$answered"] = true
	}
	if m.Flagged {
		keywords["$flagged"] = true
	}
	if m.Forwarded {
		keywords["$forwarded"] = true
	}
	if m.Junk {
		keywords["$junk"] = true
	}
	if m.Notjunk {
		keywords["$notjunk"] = true
	}
	if m.Draft {
		keywords["$draft"] = true
	}
	if m.Phishing {
		keywords["$phishing"] = true
	}
	if m.MDNSent {
		keywords["$mdnsent"] = true
	}
	for _, kw := range m.Keywords {
		keywords[kw] = true
	}
	return keywords
}

func emailProjection(m store.Message) Email {
	return Email{
		Id:            basetypes.NewIdFromInt64(m.ID),
		MailboxIds:    map[basetypes.Id]bool{basetypes.NewIdFromInt64(m.MailboxID): true},
		Keywords:      keywordsFor(m),
		Size:          basetypes.Uint(m.Size),
		ReceivedAt:    basetypes.UTCDate(m.Received),
		Subject:       m.Subject,
		HasAttachment: m.HasAttachment,
		ThreadId:      basetypes.NewIdFromInt64(m.ThreadID),
	}
}

// QueryEmail runs an Email/query. The filter is flattened and folded through
// the query filter chain and the mailbox filter chain, then evaluated against
// the messages in mailboxes visible to the user.
func (ja *JAccount) QueryEmail(ctx context.Context, filter *basetypes.Filter, sortComps []basetypes.Comparator, position basetypes.Int, limit *basetypes.Uint, calculateTotal bool) (state string, canCalculateChanges bool, retPosition basetypes.Int, ids []basetypes.Id, total basetypes.Uint, mErr *mlevelerrors.MethodLevelError) {
	fc, mErr := emailFilterConditionFromFilter(filter)
	if mErr != nil {
		return "", false, 0, nil, 0, mErr
	}

	query, mErr := buildSearchQuery(fc)
	if mErr != nil {
		return "", false, 0, nil, 0, mErr
	}
	mmQuery := applyMailboxFilters(fc, MultiMailboxSearchQuery{Query: query})

	state, err := store.MailboxState(ctx, ja.DB())
	if err != nil {
		ja.mlog.Errorx("getting mailbox state", err)
		return "", false, 0, nil, 0, mlevelerrors.NewMethodLevelErrorServerFail()
	}

	jmbs, err := ja.visibleMailboxes(ctx)
	if err != nil {
		ja.mlog.Errorx("listing mailboxes", err)
		return "", false, 0, nil, 0, mlevelerrors.NewMethodLevelErrorServerFail()
	}

	msgs, err := bstore.QueryDB[store.Message](ctx, ja.DB()).
		FilterEqual("Expunged", false).
		FilterFn(func(m store.Message) bool {
			if _, ok := jmbs.ByID(m.MailboxID); !ok {
				return false
			}
			return mmQuery.Match(m)
		}).
		List()
	if err != nil {
		ja.mlog.Errorx("listing messages", err)
		return "", false, 0, nil, 0, mlevelerrors.NewMethodLevelErrorServerFail()
	}

	less, mErr := messageLess(sortComps)
	if mErr != nil {
		return "", false, 0, nil, 0, mErr
	}
	sort.Slice(msgs, func(i, j int) bool {
		return less(msgs[i], msgs[j])
	})

	total = basetypes.Uint(len(msgs))

	start := int(position)
	if start < 0 {
		start = len(msgs) + start
		if start < 0 {
			start = 0
		}
	}
	if start > len(msgs) {
		start = len(msgs)
	}
	msgs = msgs[start:]
	if limit != nil && uint64(len(msgs)) > uint64(*limit) {
		msgs = msgs[:*limit]
	}

	for _, m := range msgs {
		ids = append(ids, basetypes.NewIdFromInt64(m.ID))
	}
	return state, false, basetypes.Int(start), ids, total, nil
}

// messageLess returns the sort order for the comparators, most recently
// received first when no comparator is given.
func messageLess(sortComps []basetypes.Comparator) (func(a, b store.Message) bool, *mlevelerrors.MethodLevelError) {
	if len(sortComps) == 0 {
		return func(a, b store.Message) bool {
			return a.Received.After(b.Received)
		}, nil
	}

	type cmp func(a, b store.Message) int
	var cmps []cmp
	for _, comp := range sortComps {
		var c cmp
		switch comp.Property {
		case "receivedAt":
			c = func(a, b store.Message) int {
				switch {
				case a.Received.Before(b.Received):
					return -1
				case a.Received.After(b.Received):
					return 1
				}
				return 0
			}
		case "size":
			c = func(a, b store.Message) int {
				switch {
				case a.Size < b.Size:
					return -1
				case a.Size > b.Size:
					return 1
				}
				return 0
			}
		default:
			return nil, mlevelerrors.NewMethodLevelErrorUnsupportedSort(fmt.Sprintf("sort on %s is not supported", comp.Property))
		}
		if !comp.IsAscending {
			inner := c
			c = func(a, b store.Message) int {
				return -inner(a, b)
			}
		}
		cmps = append(cmps, c)
	}

	return func(a, b store.Message) bool {
		for _, c := range cmps {
			switch c(a, b) {
			case -1:
				return true
			case 1:
				return false
			}
		}
		return a.ID < b.ID
	}, nil
}

// GetEmail returns the metadata projections for the requested message ids.
func (ja *JAccount) GetEmail(ctx context.Context, ids []basetypes.Id) (result []Email, notFound []basetypes.Id, state string, mErr *mlevelerrors.MethodLevelError) {
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

	for _, id := range ids {
		idInt, err := id.Int64()
		if err != nil {
			notFound = append(notFound, id)
			continue
		}
		m := store.Message{ID: idInt}
		err = ja.DB().Get(ctx, &m)
		if err == bstore.ErrAbsent {
			notFound = append(notFound, id)
			continue
		} else if err != nil {
			ja.mlog.Errorx("getting message", err)
			return nil, nil, "", mlevelerrors.NewMethodLevelErrorServerFail()
		}
		if m.Expunged {
			notFound = append(notFound, id)
			continue
		}
		if _, ok := jmbs.ByID(m.MailboxID); !ok {
			notFound = append(notFound, id)
			continue
		}
		result = append(result, emailProjection(m))
	}
	return result, notFound, state, nil
}
