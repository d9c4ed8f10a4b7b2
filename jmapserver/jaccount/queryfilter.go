package jaccount

import (
	"fmt"
	"time"

	"golang.org/x/exp/slices"

	"github.com/jmapd/jmapd/jmapserver/basetypes"
	"github.com/jmapd/jmapd/jmapserver/mlevelerrors"
	"github.com/jmapd/jmapd/store"
)

// EmailFilterCondition holds the filter properties of Email/query. Each
// property is optional, a nil/empty value leaves the query unrestricted for
// that property.
type EmailFilterCondition struct {
	InMailbox          *basetypes.Id
	InMailboxOtherThan []basetypes.Id
	Before             *time.Time
	After              *time.Time
	MinSize            *int64
	MaxSize            *int64
	HasAttachment      *bool
	HasKeyword         string
	NotKeyword         string
	Text               string

	//recognized but deliberately unsupported, their presence fails the query
	AllInThreadHaveKeyword  string
	NoneInThreadHaveKeyword string
	SomeInThreadHaveKeyword string
}

// emailFilterConditionFromFilter flattens a parsed filter into an
// EmailFilterCondition. A single condition or an AND of conditions is
// accepted, anything else is an unsupported filter.
func emailFilterConditionFromFilter(filter *basetypes.Filter) (EmailFilterCondition, *mlevelerrors.MethodLevelError) {
	var fc EmailFilterCondition
	if filter == nil {
		return fc, nil
	}

	var conditions []basetypes.FilterCondition
	switch f := filter.GetFilter().(type) {
	case basetypes.FilterCondition:
		conditions = append(conditions, f)
	case basetypes.FilterOperator:
		if f.Operator != basetypes.FilterOperatorTypeAND {
			return fc, mlevelerrors.NewMethodLevelErrorUnsupportedFilter(fmt.Sprintf("operator %s is not supported", f.Operator))
		}
		for _, c := range f.Conditions {
			cond, ok := c.(basetypes.FilterCondition)
			if !ok {
				return fc, mlevelerrors.NewMethodLevelErrorUnsupportedFilter("nested operators are not supported")
			}
			conditions = append(conditions, cond)
		}
	default:
		return fc, mlevelerrors.NewMethodLevelErrorUnsupportedFilter("unrecognized filter")
	}

	for _, cond := range conditions {
		if mErr := fc.assign(cond); mErr != nil {
			return EmailFilterCondition{}, mErr
		}
	}
	return fc, nil
}

func (fc *EmailFilterCondition) assign(cond basetypes.FilterCondition) *mlevelerrors.MethodLevelError {
	invalid := func() *mlevelerrors.MethodLevelError {
		return mlevelerrors.NewMethodLevelErrorUnsupportedFilter(fmt.Sprintf("invalid value for filter property %s", cond.Property))
	}

	switch cond.Property {
	case "inMailbox":
		s, ok := cond.AssertedValue.(string)
		if !ok {
			return invalid()
		}
		id := basetypes.Id(s)
		fc.InMailbox = &id
	case "inMailboxOtherThan":
		list, ok := cond.AssertedValue.([]interface{})
		if !ok {
			return invalid()
		}
		for _, el := range list {
			s, ok := el.(string)
			if !ok {
				return invalid()
			}
			fc.InMailboxOtherThan = append(fc.InMailboxOtherThan, basetypes.Id(s))
		}
	case "before":
		t, mErr := parseFilterDate(cond.AssertedValue)
		if mErr != nil {
			return mErr
		}
		fc.Before = t
	case "after":
		t, mErr := parseFilterDate(cond.AssertedValue)
		if mErr != nil {
			return mErr
		}
		fc.After = t
	case "minSize":
		n, ok := cond.AssertedValue.(float64)
		if !ok {
			return invalid()
		}
		size := int64(n)
		fc.MinSize = &size
	case "maxSize":
		n, ok := cond.AssertedValue.(float64)
		if !ok {
			return invalid()
		}
		size := int64(n)
		fc.MaxSize = &size
	case "hasAttachment":
		b, ok := cond.AssertedValue.(bool)
		if !ok {
			return invalid()
		}
		fc.HasAttachment = &b
	case "hasKeyword":
		s, ok := cond.AssertedValue.(string)
		if !ok {
			return invalid()
		}
		fc.HasKeyword = s
	case "notKeyword":
		s, ok := cond.AssertedValue.(string)
		if !ok {
			return invalid()
		}
		fc.NotKeyword = s
	case "text":
		s, ok := cond.AssertedValue.(string)
		if !ok {
			return invalid()
		}
		fc.Text = s
	case "allInThreadHaveKeyword":
		s, ok := cond.AssertedValue.(string)
		if !ok || s == "" {
			return invalid()
		}
		fc.AllInThreadHaveKeyword = s
	case "noneInThreadHaveKeyword":
		s, ok := cond.AssertedValue.(string)
		if !ok || s == "" {
			return invalid()
		}
		fc.NoneInThreadHaveKeyword = s
	case "someInThreadHaveKeyword":
		s, ok := cond.AssertedValue.(string)
		if !ok || s == "" {
			return invalid()
		}
		fc.SomeInThreadHaveKeyword = s
	default:
		return mlevelerrors.NewMethodLevelErrorUnsupportedFilter(fmt.Sprintf("filter property %s is not supported", cond.Property))
	}
	return nil
}

func parseFilterDate(value any) (*time.Time, *mlevelerrors.MethodLevelError) {
	s, ok := value.(string)
	if !ok {
		return nil, mlevelerrors.NewMethodLevelErrorUnsupportedFilter("date must be a string")
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, mlevelerrors.NewMethodLevelErrorUnsupportedFilter(fmt.Sprintf("invalid date %s", s))
	}
	return &t, nil
}

// Criterion matches one property of a message.
type Criterion interface {
	Match(m store.Message) bool
}

// SearchQuery is a conjunction of criteria built from an email query filter.
type SearchQuery struct {
	Criteria []Criterion
}

// And returns a new query with c appended. The receiver is not modified.
func (q SearchQuery) And(c Criterion) SearchQuery {
	return SearchQuery{Criteria: append(slices.Clone(q.Criteria), c)}
}

// Match reports whether m satisfies all criteria.
func (q SearchQuery) Match(m store.Message) bool {
	for _, c := range q.Criteria {
		if !c.Match(m) {
			return false
		}
	}
	return true
}

type orCriterion struct {
	a, b Criterion
}

func (c orCriterion) Match(m store.Message) bool {
	return c.a.Match(m) || c.b.Match(m)
}

// Date criteria compare at one second resolution.
type receivedBeforeCriterion struct {
	t time.Time
}

func (c receivedBeforeCriterion) Match(m store.Message) bool {
	return m.Received.Truncate(time.Second).Before(c.t.Truncate(time.Second))
}

type receivedSameSecondCriterion struct {
	t time.Time
}

func (c receivedSameSecondCriterion) Match(m store.Message) bool {
	return m.Received.Truncate(time.Second).Equal(c.t.Truncate(time.Second))
}

type receivedAfterCriterion struct {
	t time.Time
}

func (c receivedAfterCriterion) Match(m store.Message) bool {
	return m.Received.Truncate(time.Second).After(c.t.Truncate(time.Second))
}

type sizeGreaterCriterion struct {
	size int64
}

func (c sizeGreaterCriterion) Match(m store.Message) bool {
	return m.Size > c.size
}

type sizeEqualsCriterion struct {
	size int64
}

func (c sizeEqualsCriterion) Match(m store.Message) bool {
	return m.Size == c.size
}

type sizeLessCriterion struct {
	size int64
}

func (c sizeLessCriterion) Match(m store.Message) bool {
	return m.Size < c.size
}

type attachmentCriterion struct {
	has bool
}

func (c attachmentCriterion) Match(m store.Message) bool {
	return m.HasAttachment == c.has
}

// flagCriterion asserts a keyword is set or unset. A keyword resolves to a
// system flag when its folded name matches one, otherwise it is matched
// caselessly against the custom keywords of the message.
type flagCriterion struct {
	keyword string
	set     bool
}

func (c flagCriterion) Match(m store.Message) bool {
	isSet := false
	if getter, ok := systemFlag(c.keyword); ok {
		isSet = getter(m.Flags)
	} else {
		folded := store.Fold(c.keyword)
		isSet = slices.ContainsFunc(m.Keywords, func(kw string) bool {
			return store.Fold(kw) == folded
		})
	}
	return isSet == c.set
}

func systemFlag(keyword string) (func(store.Flags) bool, bool) {
	switch store.Fold(keyword) {
	case "$seen":
		return func(f store.Flags) bool { return f.Seen }, true
	case "$answered":
		return func(f store.Flags) bool { return f.Answered }, true
	case "$flagged":
		return func(f store.Flags) bool { return f.Flagged }, true
	case "$forwarded":
		return func(f store.Flags) bool { return f.Forwarded }, true
	case "$junk":
		return func(f store.Flags) bool { return f.Junk }, true
	case "$notjunk":
		return func(f store.Flags) bool { return f.Notjunk }, true
	case "$draft":
		return func(f store.Flags) bool { return f.Draft }, true
	case "$phishing":
		return func(f store.Flags) bool { return f.Phishing }, true
	case "$mdnsent":
		return func(f store.Flags) bool { return f.MDNSent }, true
	}
	return nil, false
}

type textCriterion struct {
	search store.WordSearch
}

func (c textCriterion) Match(m store.Message) bool {
	return c.search.MatchText(m.Subject)
}

// queryFilter translates one filter property into criteria on the query, or
// fails the whole build for an unsupported property.
type queryFilter func(fc EmailFilterCondition, q SearchQuery) (SearchQuery, *mlevelerrors.MethodLevelError)

// emailQueryFilters are applied in fixed order. The unsupported thread
// keyword filters come last but short-circuit the build regardless of what
// other properties are present.
var emailQueryFilters = []queryFilter{
	filterReceivedBefore,
	filterReceivedAfter,
	filterHasAttachment,
	filterHasKeyword,
	filterNotKeyword,
	filterMinSize,
	filterMaxSize,
	filterText,
	filterAllInThreadHaveKeyword,
	filterNoneInThreadHaveKeyword,
	filterSomeInThreadHaveKeyword,
}

// buildSearchQuery folds the filter chain over an empty query. The first
// failing filter aborts the build, no partial query is returned.
func buildSearchQuery(fc EmailFilterCondition) (SearchQuery, *mlevelerrors.MethodLevelError) {
	var q SearchQuery
	for _, filter := range emailQueryFilters {
		var mErr *mlevelerrors.MethodLevelError
		q, mErr = filter(fc, q)
		if mErr != nil {
			return SearchQuery{}, mErr
		}
	}
	return q, nil
}

// before matches strictly before or within the same second.
func filterReceivedBefore(fc EmailFilterCondition, q SearchQuery) (SearchQuery, *mlevelerrors.MethodLevelError) {
	if fc.Before == nil {
		return q, nil
	}
	return q.And(orCriterion{
		a: receivedBeforeCriterion{t: *fc.Before},
		b: receivedSameSecondCriterion{t: *fc.Before},
	}), nil
}

// after matches strictly after only.
func filterReceivedAfter(fc EmailFilterCondition, q SearchQuery) (SearchQuery, *mlevelerrors.MethodLevelError) {
	if fc.After == nil {
		return q, nil
	}
	return q.And(receivedAfterCriterion{t: *fc.After}), nil
}

func filterHasAttachment(fc EmailFilterCondition, q SearchQuery) (SearchQuery, *mlevelerrors.MethodLevelError) {
	if fc.HasAttachment == nil {
		return q, nil
	}
	return q.And(attachmentCriterion{has: *fc.HasAttachment}), nil
}

func filterHasKeyword(fc EmailFilterCondition, q SearchQuery) (SearchQuery, *mlevelerrors.MethodLevelError) {
	if fc.HasKeyword == "" {
		return q, nil
	}
	return q.And(flagCriterion{keyword: fc.HasKeyword, set: true}), nil
}

func filterNotKeyword(fc EmailFilterCondition, q SearchQuery) (SearchQuery, *mlevelerrors.MethodLevelError) {
	if fc.NotKeyword == "" {
		return q, nil
	}
	return q.And(flagCriterion{keyword: fc.NotKeyword, set: false}), nil
}

// minSize matches sizes greater than or equal to the threshold.
func filterMinSize(fc EmailFilterCondition, q SearchQuery) (SearchQuery, *mlevelerrors.MethodLevelError) {
	if fc.MinSize == nil {
		return q, nil
	}
	return q.And(orCriterion{
		a: sizeGreaterCriterion{size: *fc.MinSize},
		b: sizeEqualsCriterion{size: *fc.MinSize},
	}), nil
}

// maxSize matches sizes strictly less than the threshold.
func filterMaxSize(fc EmailFilterCondition, q SearchQuery) (SearchQuery, *mlevelerrors.MethodLevelError) {
	if fc.MaxSize == nil {
		return q, nil
	}
	return q.And(sizeLessCriterion{size: *fc.MaxSize}), nil
}

func filterText(fc EmailFilterCondition, q SearchQuery) (SearchQuery, *mlevelerrors.MethodLevelError) {
	if fc.Text == "" {
		return q, nil
	}
	return q.And(textCriterion{search: store.PrepareWordSearch([]string{fc.Text}, nil)}), nil
}

func filterAllInThreadHaveKeyword(fc EmailFilterCondition, q SearchQuery) (SearchQuery, *mlevelerrors.MethodLevelError) {
	if fc.AllInThreadHaveKeyword == "" {
		return q, nil
	}
	return SearchQuery{}, mlevelerrors.NewMethodLevelErrorUnsupportedFilter("allInThreadHaveKeyword is not supported")
}

func filterNoneInThreadHaveKeyword(fc EmailFilterCondition, q SearchQuery) (SearchQuery, *mlevelerrors.MethodLevelError) {
	if fc.NoneInThreadHaveKeyword == "" {
		return q, nil
	}
	return SearchQuery{}, mlevelerrors.NewMethodLevelErrorUnsupportedFilter("noneInThreadHaveKeyword is not supported")
}

func filterSomeInThreadHaveKeyword(fc EmailFilterCondition, q SearchQuery) (SearchQuery, *mlevelerrors.MethodLevelError) {
	if fc.SomeInThreadHaveKeyword == "" {
		return q, nil
	}
	return SearchQuery{}, mlevelerrors.NewMethodLevelErrorUnsupportedFilter("someInThreadHaveKeyword is not supported")
}
