package basetypes

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestFilter(t *testing.T) {

	t.Run("Unmarshal", func(t *testing.T) {

		for _, tc := range []struct {
			Testcase string
			JSON     string
			EError   bool
			EFilter  Filter
		}{
			{
				Testcase: "simple assertion",
				JSON:     `{ "operator": "NOT", "conditions": [ { "id_of_inbox":"abc"} ] }`,
				EFilter: Filter{
					filter: FilterOperator{
						Operator: FilterOperatorTypeNOT,
						Conditions: []interface{}{
							FilterCondition{
								Property:      "id_of_inbox",
								AssertedValue: "abc",
							},
						},
					},
				},
			},
			{
				Testcase: "simple filter condition",
				JSON:     `{ "id_of_inbox":"abc"}`,
				EFilter: Filter{
					filter: FilterCondition{
						Property:      "id_of_inbox",
						AssertedValue: "abc",
					},
				},
			},
		} {
			t.Run(tc.Testcase, func(t *testing.T) {

				var filter Filter

				err := json.Unmarshal([]byte(tc.JSON), &filter)
				if err != nil {
					if !tc.EError {
						t.Fatalf("got error %s but was expecting no error", err)
					}
				} else {
					if !reflect.DeepEqual(filter, tc.EFilter) {
						t.Fatalf("was expecting %s but got %s", tc.EFilter, filter)
					}
				}

			})
		}
	})

}

func TestFilterOperator(t *testing.T) {

	t.Run("Unmarshal", func(t *testing.T) {

		for _, tc := range []struct {
			Testcase        string
			JSON            string
			EError          bool
			EFilterOperator FilterOperator
		}{
			{
				Testcase: "simple assertion",
				JSON:     `{ "operator": "NOT", "conditions": [ { "id_of_inbox":"abc"} ] }`,
				EFilterOperator: FilterOperator{
					Operator: FilterOperatorTypeNOT,
					Conditions: []interface{}{
						FilterCondition{
							Property:      "id_of_inbox",
							AssertedValue: "abc",
						},
					},
				},
			},
			{
				Testcase: "More complex",
				JSON:     `{ "operator": "AND", "conditions": [ { "id_of_inbox":"abc"}, { "operator" : "NOT", "conditions": [ {"sender": "me" }] }] }`,
				EFilterOperator: FilterOperator{
					Operator: FilterOperatorTypeAND,
					Conditions: []interface{}{
						FilterCondition{
							Property:      "id_of_inbox",
							AssertedValue: "abc",
						},
						FilterOperator{
							Operator: FilterOperatorTypeNOT,
							Conditions: Conditions{
								FilterCondition{
									Property:      "sender",
									AssertedValue: "me",
								},
							},
						},
					},
				},
			},
		} {
			t.Run(tc.Testcase, func(t *testing.T) {

				var filterOperator FilterOperator

				err := json.Unmarshal([]byte(tc.JSON), &filterOperator)
				if err != nil {
					if !tc.EError {
						t.Fatalf("got error %s but was expecting no error", err)
					}
				} else {
					if !reflect.DeepEqual(filterOperator, tc.EFilterOperator) {
						t.Fatalf("was expecting %s but got %s", tc.EFilterOperator, filterOperator)
					}
				}

			})
		}
	})

}

func TestCreatedIDs(t *testing.T) {
	c := NewCreatedIDs()

	if _, ok := c.Resolve("A"); ok {
		t.Fatalf("resolved creation id that was never added")
	}

	c.Add("A", "10")
	c.Add("B", "11")

	if id, ok := c.Resolve("A"); !ok || id != "10" {
		t.Fatalf("was expecting 10 but got %s (ok %v)", id, ok)
	}
	if id, ok := c.Resolve("B"); !ok || id != "11" {
		t.Fatalf("was expecting 11 but got %s (ok %v)", id, ok)
	}

	all := c.All()
	if len(all) != 2 || all["A"] != "10" || all["B"] != "11" {
		t.Fatalf("unexpected map %v", all)
	}
}

func TestParseId(t *testing.T) {
	for _, tc := range []struct {
		Testcase string
		IdStr    string
		EError   bool
	}{
		{
			Testcase: "plain id",
			IdStr:    "123",
		},
		{
			Testcase: "account id is a login name",
			IdStr:    "mjl@example.org",
		},
		{
			Testcase: "creation id reference",
			IdStr:    "#a",
		},
		{
			Testcase: "bare hash",
			IdStr:    "#",
			EError:   true,
		},
		{
			Testcase: "empty",
			IdStr:    "",
			EError:   true,
		},
		{
			Testcase: "space",
			IdStr:    "a b",
			EError:   true,
		},
	} {
		t.Run(tc.Testcase, func(t *testing.T) {
			id, mErr := ParseId(tc.IdStr)
			if tc.EError {
				if mErr == nil {
					t.Fatalf("was expecting an error for %q but got none", tc.IdStr)
				}
				return
			}
			if mErr != nil {
				t.Fatalf("got error %s but was expecting no error", mErr)
			}
			if id != Id(tc.IdStr) {
				t.Fatalf("was expecting %s but got %s", tc.IdStr, id)
			}

			var unmarshaled Id
			if err := json.Unmarshal([]byte(`"`+tc.IdStr+`"`), &unmarshaled); err != nil {
				t.Fatalf("got error %s unmarshalling %q", err, tc.IdStr)
			}
			if unmarshaled != Id(tc.IdStr) {
				t.Fatalf("was expecting %s but got %s", tc.IdStr, unmarshaled)
			}
		})
	}
}

func TestIdCreationRef(t *testing.T) {
	for _, tc := range []struct {
		Testcase string
		Id       Id
		ERef     Id
		EOk      bool
	}{
		{
			Testcase: "reference",
			Id:       "#draftbox",
			ERef:     "draftbox",
			EOk:      true,
		},
		{
			Testcase: "plain id",
			Id:       "123",
		},
		{
			Testcase: "bare hash",
			Id:       "#",
		},
	} {
		t.Run(tc.Testcase, func(t *testing.T) {
			ref, ok := tc.Id.CreationRef()
			if ok != tc.EOk || ref != tc.ERef {
				t.Fatalf("was expecting (%s,%v) but got (%s,%v)", tc.ERef, tc.EOk, ref, ok)
			}
		})
	}
}

func TestFilterCondition(t *testing.T) {
	t.Run("Unmarshal", func(t *testing.T) {

		for _, tc := range []struct {
			Testcase         string
			JSON             string
			EError           bool
			EFilterCondition FilterCondition
		}{
			{
				Testcase: "simple assertion",
				JSON:     `{ "inMailbox": "id_of_inbox" }`,
				EFilterCondition: FilterCondition{
					Property:      "inMailbox",
					AssertedValue: "id_of_inbox",
				},
			},
			{
				Testcase: "Double assertion",
				JSON:     `{ "inMailbox": "id_of_inbox", "other": 1 }`,
				EFilterCondition: FilterCondition{
					Property:      "inMailbox",
					AssertedValue: "id_of_inbox",
				},
				EError: true,
			},
			{
				Testcase: "simple assertion with integer",
				JSON:     `{ "inMailbox": true }`,
				EFilterCondition: FilterCondition{
					Property:      "inMailbox",
					AssertedValue: true,
				},
			},
		} {
			t.Run(tc.Testcase, func(t *testing.T) {

				var filterCondition FilterCondition

				err := json.Unmarshal([]byte(tc.JSON), &filterCondition)
				if err != nil {
					if !tc.EError {
						t.Fatalf("got error %s but was expecting no error", err)
					}
				} else {
					if filterCondition != tc.EFilterCondition {
						t.Fatalf("was expecting %s but got %s", tc.EFilterCondition, filterCondition)
					}
				}

			})
		}
	})
}
