package httphandler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jmapd/jmapd/jmapserver/basetypes"
	"github.com/jmapd/jmapd/jmapserver/capabilitier"
	"github.com/jmapd/jmapd/jmapserver/core"
	"github.com/jmapd/jmapd/jmapserver/jaccount"
	"github.com/jmapd/jmapd/jmapserver/mlevelerrors"
	"github.com/jmapd/jmapd/metrics"
	"github.com/jmapd/jmapd/mlog"
)

const (
	HeaderContentType     = "content-type"
	HeaderContentTypeJSON = "application/json"
)

// Request is the top level request object for the api handler
type Request struct {
	//Using contains the set of capabilities the client wishes to use
	Using []string `json:"using"`

	//MethodCalls is an array of method calls to process on the server
	MethodCalls []InvocationRequest `json:"methodCalls"`

	//CreatedIds is an (optional) map of a (client-specified) creation id to the id the server assigned when a record was successfully created.
	CreatedIds map[basetypes.Id]basetypes.Id `json:"createdIds"`
}

// InvocationRequest is a call to datatype's method
// NB: there are no JSON tags here. This is handled in the custom umarshaler
type InvocationRequest struct {
	Name         string
	Arguments    json.RawMessage
	MethodCallID string
}

func (inv *InvocationRequest) UnmarshalJSON(b []byte) error {
	/*
	   Invocation consists of 3 elements:
	   1. name (string) (Format:  <datatype>/[get|changes|set|copy|query|querychanges])
	   2. arguments (map[string]interface{})
	   3. method call id (string)
	*/
	type invocationTuple [3]json.RawMessage

	var it invocationTuple

	if err := json.Unmarshal(b, &it); err != nil {
		switch e := err.(type) {
		case *json.InvalidUnmarshalError:
			//InvalidUnmarshalError is only returned when a non pointer is provided to Decode/Unmarshal
			return e
		case *json.SyntaxError:
			//SyntaxError means the JSON is invalid
			return NewRequestLevelErrorNotJSON(err.Error())
		case *json.UnmarshalTypeError:
			return NewRequestLevelErrorNotRequest(fmt.Sprintf("error in %s", e.Field))
		default:
			return e
		}
	}

	//parse the name
	var name string
	if err := json.Unmarshal(it[0], &name); err != nil {
		return NewRequestLevelErrorNotRequest("invocation name must be a string")
	}

	var commandReference string
	if err := json.Unmarshal(it[2], &commandReference); err != nil {
		return NewRequestLevelErrorNotRequest("command reference name must be a string")
	}

	*inv = InvocationRequest{
		Name:         name,
		Arguments:    it[1],
		MethodCallID: commandReference,
	}

	return nil
}

// InvocationResponse is an invocation but with slightly different types than InvocationRequest
// NB: there are no JSON tags because this is marshalled into a tuple
type InvocationResponse struct {
	//Name is not returned when the invocation resulted in an error
	Name         string
	Arguments    map[string]interface{}
	MethodCallID string
}

// MarshalJSON is a custom marshaller because we need to return a tuple here
func (invResp InvocationResponse) MarshalJSON() ([]byte, error) {
	var resp []interface{}

	if _, isError := invResp.Arguments["error"]; isError {
		resp = append(resp, "error", invResp.Arguments["error"], invResp.MethodCallID)
	} else {
		resp = append(resp, invResp.Name, invResp.Arguments, invResp.MethodCallID)
	}

	return json.Marshal(resp)
}

// newInvocationResponse instantiates a new empty reponse with only the methodCallID set
func newInvocationResponse(methodCallID string) InvocationResponse {
	return InvocationResponse{
		MethodCallID: methodCallID,
	}
}

// withArgError adds an error to an invocation reponse
func (inv InvocationResponse) withArgError(mErr *mlevelerrors.MethodLevelError) InvocationResponse {
	inv.Arguments = map[string]interface{}{
		"error": mErr,
	}
	return inv
}

// withArgOK adds a method output to an invocation reponse
func (inv InvocationResponse) withArgOK(methodCall string, args map[string]interface{}) InvocationResponse {
	inv.Arguments = args
	inv.Name = methodCall
	return inv
}

// Response is the top level reponse that is sent by the API handler
type Response struct {
	MethodResponses []InvocationResponse          `json:"methodResponses"`
	CreatedIds      map[basetypes.Id]basetypes.Id `json:"createdIds,omitempty"`
	SessionState    string                        `json:"sessionState"`
}

// getResultByRef resolves the ResultReference
func (r Response) getResultByRef(resultRef *ResultReference, anchorName string, unmarshalAs any) *mlevelerrors.MethodLevelError {
	for _, resp := range r.MethodResponses {
		if resp.MethodCallID == resultRef.ResultOf {
			//need to check if the name of the method matches
			if resp.Name != resultRef.Name {
				return mlevelerrors.NewMethodLevelErrorInvalidResultReference("method name is not matching with method call id")
			}
			//marshal the result of that particular call
			jsonMessage, mlErr := resolveJSONPointer(resp.Arguments, resultRef.Path)
			if mlErr != nil {
				return mlErr
			}

			if err := json.Unmarshal(jsonMessage, unmarshalAs); err != nil {
				return mlevelerrors.NewMethodLevelErrorInvalidArguments(fmt.Sprintf("resolved %s is of incorrect type", anchorName))
			}
			return nil

		}
	}
	return mlevelerrors.NewMethodLevelErrorInvalidResultReference(fmt.Sprintf("no method call id %s found in result", resultRef.ResultOf))
}

// resolveJSONPointer implements rfc6901 with the JMAP extension that '*' maps
// through an array.
func resolveJSONPointer(resp map[string]interface{}, pointer string) (json.RawMessage, *mlevelerrors.MethodLevelError) {
	/*
		valid values for pointer are:
		- /element/subelement
		- /element/arr/0/property1
		- /element/ * /property
	*/

	var result interface{}
	if len(pointer) == 0 {
		result = resp
	} else {
		if !strings.HasPrefix(pointer, "/") {
			return nil, mlevelerrors.NewMethodLevelErrorInvalidResultReference("pointer must start with a forward slash ('/')")
		}

		var pathUpTillNow string

		pointerElements := strings.Split(strings.TrimPrefix(pointer, "/"), "/")

		for i, pointerElement := range pointerElements {
			//deal with the 2 escapes
			pointerElement = strings.ReplaceAll(pointerElement, "~1", "/")
			pointerElement = strings.ReplaceAll(pointerElement, "~0", "~")

			if i == 0 {
				//we start off with a map[string]interface{}. After that there are different posibilities so we have separate logic for i==0
				pathUpTillNow = "/"
				val, ok := resp[pointerElement]
				if !ok {
					return nil, mlevelerrors.NewMethodLevelErrorInvalidResultReference(fmt.Sprintf("no element with pointer %s found at path %s", pointerElement, pathUpTillNow))
				}
				result = val
				pathUpTillNow = pathUpTillNow + pointerElement
			} else {
				pointerElementInt, err := strconv.Atoi(pointerElement)
				if err == nil {
					//we have a number so we expect an array
					arr, ok := result.([]interface{})
					if !ok {
						return nil, mlevelerrors.NewMethodLevelErrorInvalidResultReference(fmt.Sprintf("cannot use index number on a non array at %s", pathUpTillNow))
					}

					if pointerElementInt > len(arr)-1 {
						//array out of bound
						return nil, mlevelerrors.NewMethodLevelErrorInvalidResultReference("array out of bounds")
					}
					result = arr[pointerElementInt]

				} else if pointerElement == "*" {
					//we have special char '*' with its own logic
					arr, ok := result.([]interface{})
					if !ok {
						return nil, mlevelerrors.NewMethodLevelErrorInvalidResultReference(fmt.Sprintf("%s/* does not reference an array", pathUpTillNow))
					}

					if i != len(pointerElements)-2 {
						//there must be exactly one level remaining
						return nil, mlevelerrors.NewMethodLevelErrorInvalidResultReference("can only have one extra subelement after using '*'")
					}

					//get the property that we need
					prop := pointerElements[len(pointerElements)-1]

					var resultArray []interface{}
					for _, arrElement := range arr {
						arrElementMapString, ok := arrElement.(map[string]interface{})
						if !ok {
							return nil, mlevelerrors.NewMethodLevelErrorInvalidResultReference("elements in array referenced by '*' must be of type map[string]Object")
						}

						val, ok := arrElementMapString[prop]
						if !ok {
							return nil, mlevelerrors.NewMethodLevelErrorInvalidResultReference(fmt.Sprintf("elements in array referenced by '*' do not have key %s", prop))
						}

						if valArr, ok := val.([]interface{}); ok {
							//the value referenced by prop is an array itself. The values must be flattened in the result
							resultArray = append(resultArray, valArr...)
						} else {
							resultArray = append(resultArray, val)
						}
					}
					result = resultArray
					//we are done now so we break the loop
					break
				} else {
					//we dig one level deeper
					mapStringIface, ok := result.(map[string]interface{})
					if !ok {
						return nil, mlevelerrors.NewMethodLevelErrorInvalidResultReference("invalid json")
					}

					val, ok := mapStringIface[pointerElement]
					if !ok {
						return nil, mlevelerrors.NewMethodLevelErrorInvalidResultReference(fmt.Sprintf("no key %s found at path %s", pointerElement, pathUpTillNow))
					}
					result = val

				}
				pathUpTillNow = pathUpTillNow + "/" + pointerElement
			}
		}
	}

	//marshal the result into a JSON rawmessage
	resultBytes, err := json.Marshal(result)
	if err != nil {
		//should not happen
		return nil, mlevelerrors.NewMethodLevelErrorServerFail()
	}
	return resultBytes, nil
}

// addMethodResponse adds an invocaction response. It is a builder pattern
func (r *Response) addMethodResponse(i InvocationResponse) {
	r.MethodResponses = append(r.MethodResponses, i)
}

// ResultReference references a result from a previous method call. This in order to save network roundtrips
type ResultReference struct {
	//The method call id (see Section 3.1.1) of a previous method call in the current request.
	ResultOf string `json:"resultOf"`

	//Name is the required name of a response to that method call.
	Name string `json:"name"`

	//A pointer into the arguments of the response selected via the name and resultOf properties.
	//This is a JSON Pointer [@!RFC6901], except it also allows the use of * to map through an array
	Path string `json:"path"`
}

type SessionStater interface {
	SessionState() string
}

// JAccounterFetcher returns the account adaptor for an authenticated user.
type JAccounterFetcher func(ctx context.Context, user string) (jaccount.JAccounter, error)

// APIHandler implements http.Handler for the JMAP api endpoint
type APIHandler struct {
	Capabilities           capabilitier.Capabilitiers
	CoreCapabilitySettings core.CoreCapabilitySettings
	SessionStater          SessionStater
	GetJAccount            JAccounterFetcher
	logger                 mlog.Log
}

func NewAPIHandler(capabilities capabilitier.Capabilitiers, coreSettings core.CoreCapabilitySettings, sessionStater SessionStater, getJAccount JAccounterFetcher, logger mlog.Log) *APIHandler {
	return &APIHandler{
		Capabilities:           capabilities,
		CoreCapabilitySettings: coreSettings,
		SessionStater:          sessionStater,
		GetJAccount:            getJAccount,
		logger:                 logger,
	}
}

var methodCallRegexp = regexp.MustCompile("^[a-zA-Z]+/(echo|get|changes|set|copy|query|queryChanges)$")

// ServeHTTP implements http.Handler
func (ah APIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {

	if r.Header.Get(HeaderContentType) != HeaderContentTypeJSON {
		writeOutput(http.StatusBadRequest, NewRequestLevelErrorNotJSONContentType(), w)
		return
	}

	if r.ContentLength > int64(ah.CoreCapabilitySettings.MaxSizeRequest) {
		writeOutput(http.StatusBadRequest, NewRequestLevelErrorCapabilityLimit(LimitTypeMaxSizeRequest, fmt.Sprintf("max request size is %d bytes", ah.CoreCapabilitySettings.MaxSizeRequest)), w)
		return
	}

	var request Request

	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		switch e := err.(type) {
		case *json.InvalidUnmarshalError:
			//InvalidUnmarshalError is only returned when a non pointer is provided to Decode()
			writeOutput(http.StatusInternalServerError, nil, w)
			return
		case *json.SyntaxError:
			//SyntaxError means the JSON is invalid
			writeOutput(http.StatusBadRequest, NewRequestLevelErrorNotJSON(err.Error()), w)
			return
		case *json.UnmarshalTypeError:
			writeOutput(http.StatusBadRequest, NewRequestLevelErrorNotRequest(fmt.Sprintf("error in %s", e.Field)), w)
			return
		case *RequestLevelError:
			writeOutput(e.Status, e, w)
			return
		default:
			//have a catch all for other errors that unmarshal may throw
			writeOutput(http.StatusInternalServerError, nil, w)
			return
		}
	}

	if len(request.Using) == 0 || len(request.MethodCalls) == 0 {
		writeOutput(http.StatusBadRequest, NewRequestLevelErrorNotRequest("'using' empty or no method calls"), w)
		return
	}

	if len(request.MethodCalls) > int(ah.CoreCapabilitySettings.MaxCallsInRequest) {
		writeOutput(http.StatusBadRequest, NewRequestLevelErrorCapabilityLimit(LimitTypeMaxCallsInRequest, fmt.Sprintf("max number of calls in one request is %d", ah.CoreCapabilitySettings.MaxCallsInRequest)), w)
		return
	}

	//check the 'using' field of the request
loopUsing:
	for _, capabilityURN := range request.Using {
		for _, capability := range ah.Capabilities {
			if capability.Urn() == capabilityURN {
				continue loopUsing
			}
		}
		writeOutput(http.StatusBadRequest, NewRequestLevelErrorUnknownCapability(fmt.Sprintf("%s is not a known capability", capabilityURN)), w)
		return
	}

	user, _ := r.Context().Value(CtxUserKey).(string)
	ja, err := ah.GetJAccount(r.Context(), user)
	if err != nil {
		ah.logger.Errorx("opening account", err)
		writeOutput(http.StatusInternalServerError, nil, w)
		return
	}

	//the symbol table of creation ids, seeded with the ids the client already knows
	createdIDs := basetypes.NewCreatedIDs()
	for creationID, serverID := range request.CreatedIds {
		createdIDs.Add(creationID, serverID)
	}

	response := new(Response)

	//all request level checks are done now so start with the processing of the invocations,
	//strictly in request order because later calls may reference creation ids minted by earlier calls
	for _, invocation := range request.MethodCalls {
		t0 := time.Now()
		invocationResponse := ah.processInvocation(r.Context(), ja, invocation, response, createdIDs)

		result := "ok"
		if errVal, isError := invocationResponse.Arguments["error"]; isError {
			result = "error"
			if mle, ok := errVal.(*mlevelerrors.MethodLevelError); ok {
				result = mle.Type
			}
		}
		metrics.MethodDuration.WithLabelValues(invocation.Name, result).Observe(time.Since(t0).Seconds())

		response.addMethodResponse(invocationResponse)
	}

	if all := createdIDs.All(); len(all) > 0 {
		response.CreatedIds = all
	}
	response.SessionState = ah.SessionStater.SessionState()
	writeOutput(200, response, w)
}

func (ah APIHandler) processInvocation(ctx context.Context, ja jaccount.JAccounter, invocation InvocationRequest, response *Response, createdIDs *basetypes.CreatedIDs) InvocationResponse {

	invocationResponse := newInvocationResponse(invocation.MethodCallID)

	if !methodCallRegexp.MatchString(invocation.Name) {
		return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorUnknownMethod())
	}

	nameParts := strings.Split(invocation.Name, "/")
	if len(nameParts) != 2 {
		return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorUnknownMethod())
	}

	dt := ah.Capabilities.GetDatatypeByName(nameParts[0])
	if dt == nil {
		return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorUnknownMethod())
	}

	switch nameParts[1] {
	case "echo":
		echoEr, ok := dt.(capabilitier.Echoer)
		if !ok {
			return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorUnknownMethod())
		}

		resp, mErr := echoEr.Echo(ctx, invocation.Arguments)
		if mErr != nil {
			return invocationResponse.withArgError(mErr)
		}
		return invocationResponse.withArgOK(invocation.Name, resp)

	case "get":
		dtGetter, ok := dt.(capabilitier.Getter)
		if !ok {
			//datatype does not have this method
			return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorUnknownMethod())
		}

		type getRequest struct {
			AccountId  basetypes.Id   `json:"accountId"`
			Ids        []basetypes.Id `json:"ids"`
			Properties []string       `json:"properties"`

			AccountIdResultRef  *ResultReference `json:"#accountId,omitempty"`
			IdsResultRef        *ResultReference `json:"#ids,omitempty"`
			PropertiesResultRef *ResultReference `json:"#properties,omitempty"`
		}

		requestArgs := new(getRequest)

		if err := json.Unmarshal(invocation.Arguments, requestArgs); err != nil {
			if mle, ok := err.(*mlevelerrors.MethodLevelError); ok {
				return invocationResponse.withArgError(mle)
			}
			if typeError, ok := err.(*json.UnmarshalTypeError); ok {
				//this is needed to catch unmarshal type errors in accountId
				return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorInvalidArguments(fmt.Sprintf("incorrect type for field %s", typeError.Field)))
			}
			return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorServerFail())
		}

		if !requestArgs.AccountId.IsEmpty() && requestArgs.AccountIdResultRef != nil {
			return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorInvalidArguments("cannot use 'accountId' and '#accountId' together"))
		}
		if len(requestArgs.Ids) > 0 && requestArgs.IdsResultRef != nil {
			return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorInvalidArguments("cannot use 'ids' and '#ids' together"))
		}
		if len(requestArgs.Properties) > 0 && requestArgs.PropertiesResultRef != nil {
			return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorInvalidArguments("cannot use 'properties' and '#properties' together"))
		}

		finalAccountId := requestArgs.AccountId
		finalIds := requestArgs.Ids
		finalProperties := requestArgs.Properties

		if requestArgs.AccountIdResultRef != nil {
			var accId basetypes.Id
			mlErr := response.getResultByRef(requestArgs.AccountIdResultRef, "#accountId", &accId)
			if mlErr != nil {
				return invocationResponse.withArgError(mlErr)
			}
			finalAccountId = accId
		}

		if requestArgs.IdsResultRef != nil {
			var ids []basetypes.Id
			mlErr := response.getResultByRef(requestArgs.IdsResultRef, "#ids", &ids)
			if mlErr != nil {
				return invocationResponse.withArgError(mlErr)
			}
			finalIds = ids
		}

		if requestArgs.PropertiesResultRef != nil {
			var props []string
			mlErr := response.getResultByRef(requestArgs.PropertiesResultRef, "#properties", &props)
			if mlErr != nil {
				return invocationResponse.withArgError(mlErr)
			}
			finalProperties = props
		}

		if finalAccountId.IsEmpty() {
			return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorInvalidArguments("accountId cannot be empty"))
		}

		if len(finalIds) > int(ah.CoreCapabilitySettings.MaxObjectsInGet) {
			return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorRequestTooLarge())
		}

		//ids may reference creates from earlier calls in this request
		for i, id := range finalIds {
			if ref, isRef := id.CreationRef(); isRef {
				if serverID, known := createdIDs.Resolve(ref); known {
					finalIds[i] = serverID
				}
			}
		}

		customParams := dtGetter.CustomGetRequestParams()
		if customParams != nil {
			if err := json.Unmarshal(invocation.Arguments, customParams); err != nil {
				return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorInvalidArguments("invalid arguments"))
			}
		}

		retAccountId, state, list, notFound, mErr := dtGetter.Get(ctx, ja, finalAccountId, finalIds, finalProperties, customParams)
		if mErr != nil {
			return invocationResponse.withArgError(mErr)
		}

		return invocationResponse.withArgOK(invocation.Name, map[string]interface{}{
			"accountId": retAccountId,
			"state":     state,
			"list":      list,
			"notFound":  notFound,
		})

	case "changes":
		dtChanges, ok := dt.(capabilitier.Changeser)
		if !ok {
			//datatype does not have this method
			return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorUnknownMethod())
		}

		type changesRequest struct {
			AccountId  basetypes.Id    `json:"accountId"`
			SinceState string          `json:"sinceState"`
			MaxChanges *basetypes.Uint `json:"maxChanges"`

			AccountIdResultRef  *ResultReference `json:"#accountId"`
			SinceStateResultRef *ResultReference `json:"#sinceState"`
			MaxChangesResultRef *ResultReference `json:"#maxChanges"`
		}

		var requestArgs changesRequest

		if err := json.Unmarshal(invocation.Arguments, &requestArgs); err != nil {
			if mle, ok := err.(*mlevelerrors.MethodLevelError); ok {
				return invocationResponse.withArgError(mle)
			}
			if typeError, ok := err.(*json.UnmarshalTypeError); ok {
				return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorInvalidArguments(fmt.Sprintf("incorrect type for field %s", typeError.Field)))
			}
			return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorServerFail())
		}

		if !requestArgs.AccountId.IsEmpty() && requestArgs.AccountIdResultRef != nil {
			return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorInvalidArguments("cannot use 'accountId' and '#accountId' together"))
		}
		if requestArgs.SinceState != "" && requestArgs.SinceStateResultRef != nil {
			return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorInvalidArguments("cannot use 'sinceState' and '#sinceState' together"))
		}
		if requestArgs.MaxChanges != nil && requestArgs.MaxChangesResultRef != nil {
			return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorInvalidArguments("cannot use 'maxChanges' and '#maxChanges' together"))
		}

		finalAccountId := requestArgs.AccountId
		finalSinceState := requestArgs.SinceState
		finalMaxChanges := requestArgs.MaxChanges

		if requestArgs.AccountIdResultRef != nil {
			var accId basetypes.Id
			mlErr := response.getResultByRef(requestArgs.AccountIdResultRef, "#accountId", &accId)
			if mlErr != nil {
				return invocationResponse.withArgError(mlErr)
			}
			finalAccountId = accId
		}

		if requestArgs.SinceStateResultRef != nil {
			var sinceState string
			mlErr := response.getResultByRef(requestArgs.SinceStateResultRef, "#sinceState", &sinceState)
			if mlErr != nil {
				return invocationResponse.withArgError(mlErr)
			}
			finalSinceState = sinceState
		}

		if requestArgs.MaxChangesResultRef != nil {
			var maxChanges *basetypes.Uint
			mlErr := response.getResultByRef(requestArgs.MaxChangesResultRef, "#maxChanges", &maxChanges)
			if mlErr != nil {
				return invocationResponse.withArgError(mlErr)
			}
			finalMaxChanges = maxChanges
		}

		retAccountId, oldState, newState, hasMoreChanges, created, updated, destroyed, mErr := dtChanges.Changes(ctx, ja, finalAccountId, finalSinceState, finalMaxChanges)
		if mErr != nil {
			return invocationResponse.withArgError(mErr)
		}

		return invocationResponse.withArgOK(invocation.Name, map[string]interface{}{
			"accountId":      retAccountId,
			"oldState":       oldState,
			"newState":       newState,
			"hasMoreChanges": hasMoreChanges,
			"created":        created,
			"updated":        updated,
			"destroyed":      destroyed,
		})

	case "set":
		dtSet, ok := dt.(capabilitier.Setter)
		if !ok {
			//datatype does not have this method
			return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorUnknownMethod())
		}

		type setRequest struct {
			AccountId basetypes.Id                           `json:"accountId"`
			IfInState *string                                `json:"ifInState"`
			Create    map[basetypes.Id]json.RawMessage       `json:"create"`
			Update    map[basetypes.Id]basetypes.PatchObject `json:"update"`
			Destroy   []basetypes.Id                         `json:"destroy"`
		}

		var requestArgs setRequest

		if err := json.Unmarshal(invocation.Arguments, &requestArgs); err != nil {
			if mle, ok := err.(*mlevelerrors.MethodLevelError); ok {
				return invocationResponse.withArgError(mle)
			}
			if typeError, ok := err.(*json.UnmarshalTypeError); ok {
				return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorInvalidArguments(fmt.Sprintf("incorrect type for field %s", typeError.Field)))
			}
			return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorServerFail())
		}

		if requestArgs.AccountId.IsEmpty() {
			return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorInvalidArguments("accountId cannot be empty"))
		}

		if len(requestArgs.Create)+len(requestArgs.Update)+len(requestArgs.Destroy) > int(ah.CoreCapabilitySettings.MaxObjectsInSet) {
			return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorRequestTooLarge())
		}

		customParams := dtSet.CustomSetRequestParams()
		if customParams != nil {
			if err := json.Unmarshal(invocation.Arguments, customParams); err != nil {
				return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorInvalidArguments("invalid arguments"))
			}
		}

		retAccountId, oldState, newState, created, updated, destroyed, notCreated, notUpdated, notDestroyed, mErr := dtSet.Set(ctx, ja, requestArgs.AccountId, requestArgs.IfInState, requestArgs.Create, requestArgs.Update, requestArgs.Destroy, createdIDs, customParams)
		if mErr != nil {
			return invocationResponse.withArgError(mErr)
		}

		return invocationResponse.withArgOK(invocation.Name, map[string]interface{}{
			"accountId":    retAccountId,
			"oldState":     oldState,
			"newState":     newState,
			"created":      created,
			"updated":      updated,
			"destroyed":    destroyed,
			"notCreated":   notCreated,
			"notUpdated":   notUpdated,
			"notDestroyed": notDestroyed,
		})

	case "copy":
		dtCopy, ok := dt.(capabilitier.Copier)
		if !ok {
			//datatype does not have this method
			return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorUnknownMethod())
		}

		type copyRequest struct {
			FromAccountId            basetypes.Id                 `json:"fromAccountId"`
			IfFromState              *string                      `json:"ifFromState"`
			AccountId                basetypes.Id                 `json:"accountId"`
			IfInState                *string                      `json:"ifInState"`
			Create                   map[basetypes.Id]interface{} `json:"create"`
			OnSuccessDestroyOriginal bool                         `json:"onSuccessDestroyOriginal"`
			DestroyFromIfInState     *string                      `json:"destroyFromIfInState"`
		}

		var requestArgs copyRequest

		if err := json.Unmarshal(invocation.Arguments, &requestArgs); err != nil {
			if mle, ok := err.(*mlevelerrors.MethodLevelError); ok {
				return invocationResponse.withArgError(mle)
			}
			return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorServerFail())
		}
		retFromAccountId, retAccountId, oldState, newState, created, notCreated, mErr := dtCopy.Copy(ctx, requestArgs.FromAccountId, requestArgs.IfFromState, requestArgs.AccountId, requestArgs.IfInState, requestArgs.Create, requestArgs.OnSuccessDestroyOriginal, requestArgs.DestroyFromIfInState)
		if mErr != nil {
			return invocationResponse.withArgError(mErr)
		}

		return invocationResponse.withArgOK(invocation.Name, map[string]interface{}{
			"fromAccountId": retFromAccountId,
			"accountId":     retAccountId,
			"oldState":      oldState,
			"newState":      newState,
			"created":       created,
			"notCreated":    notCreated,
		})

	case "query":
		dtQuery, ok := dt.(capabilitier.Querier)
		if !ok {
			//datatype does not have this method
			return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorUnknownMethod())
		}

		type queryRequest struct {
			AccountId      basetypes.Id           `json:"accountId"`
			Filter         *basetypes.Filter      `json:"filter"`
			Sort           []basetypes.Comparator `json:"sort"`
			Position       basetypes.Int          `json:"position"`
			Anchor         *basetypes.Id          `json:"anchor"`
			AnchorOffset   basetypes.Int          `json:"anchorOffset"`
			Limit          *basetypes.Uint        `json:"limit"`
			CalculateTotal bool                   `json:"calculateTotal"`
		}

		var requestArgs queryRequest

		if err := json.Unmarshal(invocation.Arguments, &requestArgs); err != nil {
			if mle, ok := err.(*mlevelerrors.MethodLevelError); ok {
				return invocationResponse.withArgError(mle)
			}
			return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorServerFail())
		}

		if requestArgs.AccountId.IsEmpty() {
			return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorInvalidArguments("accountId cannot be empty"))
		}

		customParams := dtQuery.CustomQueryRequestParams()
		if customParams != nil {
			if err := json.Unmarshal(invocation.Arguments, customParams); err != nil {
				return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorInvalidArguments("invalid arguments"))
			}
		}

		retAccountId, queryState, canCalculateChanges, retPosition, ids, total, retLimit, mErr := dtQuery.Query(ctx, ja, requestArgs.AccountId, requestArgs.Filter, requestArgs.Sort, requestArgs.Position, requestArgs.Anchor, requestArgs.AnchorOffset, requestArgs.Limit, requestArgs.CalculateTotal, customParams)
		if mErr != nil {
			return invocationResponse.withArgError(mErr)
		}

		return invocationResponse.withArgOK(invocation.Name, map[string]interface{}{
			"accountId":           retAccountId,
			"queryState":          queryState,
			"canCalculateChanges": canCalculateChanges,
			"position":            retPosition,
			"ids":                 ids,
			"total":               total,
			"limit":               retLimit,
		})

	case "queryChanges":
		dtQueryChanges, ok := dt.(capabilitier.QueryChangeser)
		if !ok {
			//datatype does not have this method
			return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorUnknownMethod())
		}

		type queryChangesRequest struct {
			AccountId       basetypes.Id           `json:"accountId"`
			Filter          *basetypes.Filter      `json:"filter"`
			Sort            []basetypes.Comparator `json:"sort"`
			SinceQueryState string                 `json:"sinceQueryState"`
			MaxChanges      *basetypes.Uint        `json:"maxChanges"`
			UpToId          *basetypes.Id          `json:"upToId"`
			CalculateTotal  bool                   `json:"calculateTotal"`
		}

		var requestArgs queryChangesRequest

		if err := json.Unmarshal(invocation.Arguments, &requestArgs); err != nil {
			if mle, ok := err.(*mlevelerrors.MethodLevelError); ok {
				return invocationResponse.withArgError(mle)
			}
			return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorServerFail())
		}
		retAccountId, oldQueryState, newQueryState, total, removed, added, mErr := dtQueryChanges.QueryChanges(ctx, requestArgs.AccountId, requestArgs.Filter, requestArgs.Sort, requestArgs.SinceQueryState, requestArgs.MaxChanges, requestArgs.UpToId, requestArgs.CalculateTotal)
		if mErr != nil {
			return invocationResponse.withArgError(mErr)
		}

		return invocationResponse.withArgOK(invocation.Name, map[string]interface{}{
			"accountId":     retAccountId,
			"oldQueryState": oldQueryState,
			"newQueryState": newQueryState,
			"total":         total,
			"removed":       removed,
			"added":         added,
		})

	default:
		//should not get here ever
		return invocationResponse.withArgError(mlevelerrors.NewMethodLevelErrorServerFail())
	}
}

// writeOutput encodes the body into json and writes the output to the reponse writer
func writeOutput(statusCode int, body interface{}, w http.ResponseWriter) {

	if statusCode == http.StatusInternalServerError {
		w.WriteHeader(statusCode)
		return
	}

	jsonBytes, err := json.Marshal(body)
	if err != nil {
		//we cannot do the json encoding
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Add(HeaderContentType, HeaderContentTypeJSON)
	w.WriteHeader(statusCode)
	w.Write(jsonBytes)
}
