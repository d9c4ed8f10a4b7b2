package httphandler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jmapd/jmapd/jmapserver/basetypes"
	"github.com/jmapd/jmapd/jmapserver/capabilitier"
	"github.com/jmapd/jmapd/jmapserver/core"
	"github.com/jmapd/jmapd/jmapserver/jaccount"
	"github.com/jmapd/jmapd/jmapserver/mailcapability"
	"github.com/jmapd/jmapd/jmapserver/testutils"
	"github.com/jmapd/jmapd/mlog"
	"github.com/jmapd/jmapd/store"
)

type stubSessionStater struct{}

func (s stubSessionStater) SessionState() string {
	return "stub-state"
}

func newTestAPIHandler(t *testing.T, user string) *APIHandler {
	t.Helper()
	tdb, err := testutils.GetTestDB(store.DBTypes...)
	testutils.RequireNoError(t, err)
	t.Cleanup(func() {
		tdb.Close()
	})
	acc := &store.Account{Name: user, DB: tdb.DB}
	ja := jaccount.NewJAccount(acc, user, mlog.New("jaccount", nil))

	logger := mlog.New("httphandler", nil)
	capabilities := capabilitier.Capabilitiers{
		core.NewCore(core.NewDefaultCoreCapabilitySettings()),
		mailcapability.NewMailCapability(mailcapability.NewDefaultMailCapabilitySettings(), logger),
	}
	getJAccount := func(ctx context.Context, user string) (jaccount.JAccounter, error) {
		return ja, nil
	}
	return NewAPIHandler(capabilities, core.NewDefaultCoreCapabilitySettings(), stubSessionStater{}, getJAccount, logger)
}

func doAPIRequest(t *testing.T, handler *APIHandler, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/jmap/api", strings.NewReader(body))
	req.Header.Set(HeaderContentType, HeaderContentTypeJSON)
	req = req.WithContext(context.WithValue(req.Context(), CtxUserKey, user))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

// apiResponse mirrors Response with raw invocations for easy digging.
type apiResponse struct {
	MethodResponses [][3]json.RawMessage `json:"methodResponses"`
	CreatedIds      map[string]string    `json:"createdIds"`
	SessionState    string               `json:"sessionState"`
}

func parseAPIResponse(t *testing.T, recorder *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var resp apiResponse
	testutils.RequireNoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	return resp
}

func TestAPIHandlerRequestLevelErrors(t *testing.T) {
	const user = "mjl@example.org"

	t.Run("wrong content type", func(t *testing.T) {
		handler := newTestAPIHandler(t, user)
		req := httptest.NewRequest(http.MethodPost, "/jmap/api", strings.NewReader(`{}`))
		req.Header.Set(HeaderContentType, "text/plain")
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)

		testutils.AssertEqual(t, http.StatusBadRequest, recorder.Code)
		var problem RequestLevelError
		testutils.RequireNoError(t, json.Unmarshal(recorder.Body.Bytes(), &problem))
		testutils.AssertEqual(t, requestErrorTypeNotJSON, problem.Type)
	})

	t.Run("invalid json", func(t *testing.T) {
		handler := newTestAPIHandler(t, user)
		recorder := doAPIRequest(t, handler, user, `{not json`)

		testutils.AssertEqual(t, http.StatusBadRequest, recorder.Code)
		var problem RequestLevelError
		testutils.RequireNoError(t, json.Unmarshal(recorder.Body.Bytes(), &problem))
		testutils.AssertEqual(t, requestErrorTypeNotJSON, problem.Type)
	})

	t.Run("unknown capability", func(t *testing.T) {
		handler := newTestAPIHandler(t, user)
		recorder := doAPIRequest(t, handler, user, `{
			"using": ["urn:ietf:params:jmap:unknown"],
			"methodCalls": [["Core/echo", {}, "c1"]]
		}`)

		testutils.AssertEqual(t, http.StatusBadRequest, recorder.Code)
		var problem RequestLevelError
		testutils.RequireNoError(t, json.Unmarshal(recorder.Body.Bytes(), &problem))
		testutils.AssertEqual(t, requestErrorTypeUnknownCapability, problem.Type)
	})

	t.Run("too many method calls", func(t *testing.T) {
		handler := newTestAPIHandler(t, user)

		var calls []string
		for i := 0; i <= int(core.NewDefaultCoreCapabilitySettings().MaxCallsInRequest); i++ {
			calls = append(calls, `["Core/echo", {}, "c1"]`)
		}
		recorder := doAPIRequest(t, handler, user, `{
			"using": ["urn:ietf:params:jmap:core"],
			"methodCalls": [`+strings.Join(calls, ",")+`]
		}`)

		testutils.AssertEqual(t, http.StatusBadRequest, recorder.Code)
		var problem RequestLevelError
		testutils.RequireNoError(t, json.Unmarshal(recorder.Body.Bytes(), &problem))
		testutils.AssertEqual(t, requestErrorTypeLimit, problem.Type)
		testutils.AssertEqual(t, LimitTypeMaxCallsInRequest, problem.Limit)
	})
}

func TestAPIHandlerMethodCalls(t *testing.T) {
	const user = "mjl@example.org"

	t.Run("echo", func(t *testing.T) {
		handler := newTestAPIHandler(t, user)
		recorder := doAPIRequest(t, handler, user, `{
			"using": ["urn:ietf:params:jmap:core"],
			"methodCalls": [["Core/echo", {"hello": true}, "c1"]]
		}`)

		testutils.AssertEqual(t, http.StatusOK, recorder.Code)
		resp := parseAPIResponse(t, recorder)
		testutils.AssertEqual(t, "stub-state", resp.SessionState)
		require.Len(t, resp.MethodResponses, 1)

		var name string
		testutils.RequireNoError(t, json.Unmarshal(resp.MethodResponses[0][0], &name))
		testutils.AssertEqual(t, "Core/echo", name)

		var args map[string]interface{}
		testutils.RequireNoError(t, json.Unmarshal(resp.MethodResponses[0][1], &args))
		testutils.AssertEqual(t, true, args["hello"].(bool))
	})

	t.Run("unknown method", func(t *testing.T) {
		handler := newTestAPIHandler(t, user)
		recorder := doAPIRequest(t, handler, user, `{
			"using": ["urn:ietf:params:jmap:core"],
			"methodCalls": [["Frob/get", {}, "c1"]]
		}`)

		testutils.AssertEqual(t, http.StatusOK, recorder.Code)
		resp := parseAPIResponse(t, recorder)
		require.Len(t, resp.MethodResponses, 1)

		var name string
		testutils.RequireNoError(t, json.Unmarshal(resp.MethodResponses[0][0], &name))
		testutils.AssertEqual(t, "error", name)

		var methodErr struct {
			Type string `json:"type"`
		}
		testutils.RequireNoError(t, json.Unmarshal(resp.MethodResponses[0][1], &methodErr))
		testutils.AssertEqual(t, "unknownMethod", methodErr.Type)
	})

	t.Run("set then get through creation id", func(t *testing.T) {
		handler := newTestAPIHandler(t, user)
		recorder := doAPIRequest(t, handler, user, `{
			"using": ["urn:ietf:params:jmap:core", "urn:ietf:params:jmap:mail"],
			"methodCalls": [
				["Mailbox/set", {"accountId": "`+user+`", "create": {"a": {"name": "Projects"}}}, "c1"],
				["Mailbox/get", {"accountId": "`+user+`", "ids": ["#a"]}, "c2"]
			]
		}`)

		testutils.AssertEqual(t, http.StatusOK, recorder.Code)
		resp := parseAPIResponse(t, recorder)
		require.Len(t, resp.MethodResponses, 2)

		//the creation id is reported back to the client
		serverID, ok := resp.CreatedIds["a"]
		testutils.AssertTrue(t, ok)

		var getArgs struct {
			List []struct {
				Id   basetypes.Id `json:"id"`
				Name string       `json:"name"`
			} `json:"list"`
			NotFound []basetypes.Id `json:"notFound"`
		}
		testutils.RequireNoError(t, json.Unmarshal(resp.MethodResponses[1][1], &getArgs))
		require.Len(t, getArgs.List, 1)
		testutils.AssertEqual(t, basetypes.Id(serverID), getArgs.List[0].Id)
		testutils.AssertEqual(t, "Projects", getArgs.List[0].Name)
		require.Empty(t, getArgs.NotFound)
	})

	t.Run("known creation ids from an earlier request resolve", func(t *testing.T) {
		handler := newTestAPIHandler(t, user)

		//first request creates the mailbox
		recorder := doAPIRequest(t, handler, user, `{
			"using": ["urn:ietf:params:jmap:core", "urn:ietf:params:jmap:mail"],
			"methodCalls": [["Mailbox/set", {"accountId": "`+user+`", "create": {"a": {"name": "Projects"}}}, "c1"]]
		}`)
		resp := parseAPIResponse(t, recorder)
		serverID := resp.CreatedIds["a"]
		testutils.AssertTrue(t, serverID != "")

		//second request passes the createdIds map back, so "#a" still resolves
		recorder = doAPIRequest(t, handler, user, `{
			"using": ["urn:ietf:params:jmap:core", "urn:ietf:params:jmap:mail"],
			"createdIds": {"a": "`+serverID+`"},
			"methodCalls": [["Mailbox/get", {"accountId": "`+user+`", "ids": ["#a"]}, "c1"]]
		}`)
		resp = parseAPIResponse(t, recorder)
		require.Len(t, resp.MethodResponses, 1)

		var getArgs struct {
			List     []json.RawMessage `json:"list"`
			NotFound []basetypes.Id    `json:"notFound"`
		}
		testutils.RequireNoError(t, json.Unmarshal(resp.MethodResponses[0][1], &getArgs))
		require.Len(t, getArgs.List, 1)
		require.Empty(t, getArgs.NotFound)
	})
}

func TestResolveJSONPointer(t *testing.T) {
	args := map[string]interface{}{
		"ids": []interface{}{"1", "2"},
		"list": []interface{}{
			map[string]interface{}{"id": "1", "tags": []interface{}{"a", "b"}},
			map[string]interface{}{"id": "2", "tags": []interface{}{"c"}},
		},
		"state": "5",
	}

	t.Run("simple property", func(t *testing.T) {
		raw, mErr := resolveJSONPointer(args, "/state")
		testutils.AssertNil(t, mErr)
		testutils.AssertEqual(t, `"5"`, string(raw))
	})

	t.Run("array index", func(t *testing.T) {
		raw, mErr := resolveJSONPointer(args, "/ids/1")
		testutils.AssertNil(t, mErr)
		testutils.AssertEqual(t, `"2"`, string(raw))
	})

	t.Run("star maps through an array", func(t *testing.T) {
		raw, mErr := resolveJSONPointer(args, "/list/*/id")
		testutils.AssertNil(t, mErr)
		testutils.AssertEqual(t, `["1","2"]`, string(raw))
	})

	t.Run("star flattens nested arrays", func(t *testing.T) {
		raw, mErr := resolveJSONPointer(args, "/list/*/tags")
		testutils.AssertNil(t, mErr)
		testutils.AssertEqual(t, `["a","b","c"]`, string(raw))
	})

	t.Run("missing key", func(t *testing.T) {
		_, mErr := resolveJSONPointer(args, "/nope")
		testutils.AssertNotNil(t, mErr)
		testutils.AssertEqual(t, "invalidResultReference", mErr.Type)
	})

	t.Run("out of bounds", func(t *testing.T) {
		_, mErr := resolveJSONPointer(args, "/ids/5")
		testutils.AssertNotNil(t, mErr)
		testutils.AssertEqual(t, "invalidResultReference", mErr.Type)
	})

	t.Run("pointer must start with slash", func(t *testing.T) {
		_, mErr := resolveJSONPointer(args, "state")
		testutils.AssertNotNil(t, mErr)
		testutils.AssertEqual(t, "invalidResultReference", mErr.Type)
	})
}
