package basetypes

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jmapd/jmapd/jmapserver/mlevelerrors"
)

// https://datatracker.ietf.org/doc/html/rfc8620#section-1.2
type Id string

// Besides the URL-safe id characters, "@" and "." are allowed because the
// account id is the login name. A leading "#" marks a creation-id reference,
// resolved against the creation-ids defined earlier in the request.
var idRegexp = regexp.MustCompile(`^#?[A-Za-z0-9@._-]{1,255}$`)

// ParseId parses an id from string
func ParseId(idStr string) (Id, *mlevelerrors.MethodLevelError) {
	if !idRegexp.MatchString(idStr) {
		return Id(""), mlevelerrors.NewMethodLevelErrorInvalidArguments(fmt.Sprintf("invalid id %s", idStr))
	}
	return Id(idStr), nil
}

func NewIdFromInt64(i int64) Id {
	return Id(fmt.Sprintf("%d", i))
}

func (id *Id) UnmarshalJSON(b []byte) error {
	var idStr string

	if err := json.Unmarshal(b, &idStr); err != nil {
		return err
	}

	if idStr == "" {
		return mlevelerrors.NewMethodLevelErrorInvalidArguments("id cannot be empty")
	}

	newId, mlErr := ParseId(idStr)
	if mlErr != nil {
		return mlErr
	}

	*id = newId
	return nil
}

func (id Id) IsEmpty() bool {
	return len(id) == 0
}

// Int64 returns an int64 if the format is suitable. If not, an error is sent
func (id Id) Int64() (int64, error) {
	return strconv.ParseInt(string(id), 10, 64)
}

// CreationRef returns the creation-id when id is a reference of the form
// "#<creation-id>".
func (id Id) CreationRef() (Id, bool) {
	if strings.HasPrefix(string(id), "#") && len(id) > 1 {
		return id[1:], true
	}
	return "", false
}

// https://datatracker.ietf.org/doc/html/rfc8620#section-1.3
type Uint uint64

func (ui *Uint) UnmarshalJSON(b []byte) error {
	var uiInt64 int64

	if err := json.Unmarshal(b, &uiInt64); err != nil {
		return err
	}

	newUi, mlErr := ParseUint(uiInt64)
	if mlErr != nil {
		return mlErr
	}

	*ui = newUi
	return nil
}

// https://datatracker.ietf.org/doc/html/rfc8620#section-1.3
type Int int64

// https://datatracker.ietf.org/doc/html/rfc8620#section-1.4
type Date time.Time

func (u Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(u).Format(time.RFC3339))
}

// https://datatracker.ietf.org/doc/html/rfc8620#section-1.4
type UTCDate time.Time

func (u UTCDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(u).UTC().Format(time.RFC3339))
}

func (u *UTCDate) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return mlevelerrors.NewMethodLevelErrorInvalidArguments(fmt.Sprintf("invalid date %s", s))
	}
	*u = UTCDate(t.UTC())
	return nil
}

// ParseIds parses a slice of strings into a slice of Id. If one element fails the parse, an error is returned and the failedId is returned in the response
func ParseIds(idStrs []string) (result []Id, failedId string, mErr *mlevelerrors.MethodLevelError) {
	for _, idStr := range idStrs {
		id, err := ParseId(idStr)
		if err != nil {
			return nil, idStr, err
		}
		result = append(result, id)
	}
	return result, "", nil
}

func ParseUint(i int64) (Uint, *mlevelerrors.MethodLevelError) {
	if i < 0 || float64(i) > (math.Pow(2, 53)-1) {
		return Uint(0), mlevelerrors.NewMethodLevelErrorInvalidArguments("uint out of range")
	}
	return Uint(uint64(i)), nil
}

// CreatedIDs is the symbol table of creation-ids defined in one request. Each
// successful create adds its creation-id with the server-assigned id. Method
// calls are processed strictly in request order, so a reference only resolves
// when its defining create was processed earlier in the request.
type CreatedIDs struct {
	ids map[Id]Id
}

func NewCreatedIDs() *CreatedIDs {
	return &CreatedIDs{
		ids: map[Id]Id{},
	}
}

// Add records the server id assigned to a creation-id.
func (c *CreatedIDs) Add(creationID, serverID Id) {
	c.ids[creationID] = serverID
}

// Resolve returns the server id for a creation-id defined earlier in the request.
func (c *CreatedIDs) Resolve(creationID Id) (Id, bool) {
	id, ok := c.ids[creationID]
	return id, ok
}

// All returns the full mapping, for the createdIds member of the response.
func (c *CreatedIDs) All() map[Id]Id {
	result := make(map[Id]Id, len(c.ids))
	for k, v := range c.ids {
		result[k] = v
	}
	return result
}

type FilterOperatorType string

func (fot *FilterOperatorType) UnmarshalJSON(b []byte) error {
	var temp string

	if err := json.Unmarshal(b, &temp); err != nil {
		return err
	}

	switch temp {
	case string(FilterOperatorTypeAND):
		*fot = FilterOperatorTypeAND
	case string(FilterOperatorTypeOR):
		*fot = FilterOperatorTypeOR
	case string(FilterOperatorTypeNOT):
		*fot = FilterOperatorTypeNOT
	default:
		return fmt.Errorf("empty or unknown operator type")
	}

	return nil
}

const (
	FilterOperatorTypeAND FilterOperatorType = "AND"
	FilterOperatorTypeOR  FilterOperatorType = "OR"
	FilterOperatorTypeNOT FilterOperatorType = "NOT"
)

/*
some examples for filter

"filter": {
    "operator": "OR",
    "conditions": [
      { "hasKeyword": "music" },
      { "hasKeyword": "video" }
    ]
  },

"filter": { "inMailbox": "id_of_inbox" },
*/

type Filter struct {
	//a wrapper struct is needed because a custom unmarshal method cannot have a receiver of type interface
	filter interface{}
}

func (f Filter) GetFilter() interface{} {
	return f.filter
}

func NewFilter(f interface{}) Filter {
	return Filter{filter: f}
}

func (fo *Filter) UnmarshalJSON(b []byte) error {

	var tryFilterCondition FilterCondition
	if err := json.Unmarshal(b, &tryFilterCondition); err == nil {
		if tryFilterCondition.AssertedValue != nil && tryFilterCondition.Property != "" {
			//we have a valid filter
			*fo = Filter{
				filter: tryFilterCondition,
			}
			return nil
		}
	}

	var tryFilterOperator FilterOperator
	if err := json.Unmarshal(b, &tryFilterOperator); err == nil {
		//we have a valid filter operator
		*fo = Filter{
			filter: tryFilterOperator,
		}
		return nil
	}

	return &json.UnmarshalTypeError{
		Field: "filter",
		Type:  reflect.TypeOf(fo),
	}
}

// FilterOperator is a filter containing an operator and a set of conditions
type FilterOperator struct {
	Operator FilterOperatorType `json:"operator"`

	Conditions Conditions `json:"conditions"`
}

func (fo *FilterOperator) UnmarshalJSON(b []byte) error {
	//this supporting type is needed to not get into an unmarshal loop
	type foCopy struct {
		Operator   FilterOperatorType `json:"operator"`
		Conditions Conditions         `json:"conditions"`
	}
	var temp foCopy

	if err := json.Unmarshal(b, &temp); err != nil {
		return err
	}

	if temp.Operator == FilterOperatorTypeNOT && len(temp.Conditions) != 1 {
		return fmt.Errorf("when using not, there can only be one condition")
	}

	if (temp.Operator == FilterOperatorTypeOR || temp.Operator == FilterOperatorTypeAND) && len(temp.Conditions) < 2 {
		return fmt.Errorf("when using and/or, there must be at least 2 conditions")
	}

	*fo = FilterOperator(temp)

	return nil
}

type Conditions []interface{}

func (cos *Conditions) UnmarshalJSON(b []byte) error {
	var temp []json.RawMessage

	if err := json.Unmarshal(b, &temp); err != nil {
		return err
	}

	var result []interface{}

	for _, conditionJSON := range temp {
		var tryFilterCondition FilterCondition
		if err := json.Unmarshal(conditionJSON, &tryFilterCondition); err == nil {
			if tryFilterCondition.Property != "" && tryFilterCondition.AssertedValue != nil {
				//we have a match
				result = append(result, tryFilterCondition)
				continue
			}
		}

		var tryFilterOperator FilterOperator
		if err := json.Unmarshal(conditionJSON, &tryFilterOperator); err == nil {
			if tryFilterOperator.Operator != "" {
				result = append(result, tryFilterOperator)
				continue
			}
		}
		return fmt.Errorf("invalid conditions format")
	}

	*cos = result

	return nil
}

type FilterCondition struct {
	Property      string
	AssertedValue interface{}
}

func (fc *FilterCondition) UnmarshalJSON(b []byte) error {

	var stringMap map[string]interface{}

	if err := json.Unmarshal(b, &stringMap); err != nil {
		return err
	}

	if len(stringMap) != 1 {
		return fmt.Errorf("invalid format for FilterCondition")
	}
	for k, v := range stringMap {
		*fc = FilterCondition{
			Property:      k,
			AssertedValue: v,
		}
	}
	return nil
}

type Comparator struct {
	//The name of the property on the objects to compare.
	Property string `json:"property"`

	IsAscending bool `json:"isAscending"`

	//The identifier, as registered in the collation registry defined in [RFC4790]
	Collation string `json:"collation"`
}

type PatchObject map[string]interface{}
