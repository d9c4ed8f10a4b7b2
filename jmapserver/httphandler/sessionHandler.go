package httphandler

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/jmapd/jmapd/jmapserver/mailcapability"
	"github.com/jmapd/jmapd/mlog"
)

type AccountRepoer interface {
	//GetAccounts returns the accounts of an user
	GetAccounts(ctx context.Context, userID string) (map[string]Account, error)
	GetPrimaryAccounts(ctx context.Context, userID string) (map[string]string, error)
}

// AccountRepo implements AccountRepoer. Every user has a single personal
// account whose account id equals the user id.
type AccountRepo struct{}

func NewAccountRepo() AccountRepo {
	return AccountRepo{}
}

func (ar AccountRepo) GetAccounts(ctx context.Context, userID string) (map[string]Account, error) {
	return map[string]Account{
		userID: {
			Name:       userID,
			IsPersonal: true,
			IsReadOnly: false,
			AccountCapabilities: map[string]interface{}{
				mailcapability.URN: mailcapability.NewDefaultMailCapabilitySettings(),
			},
		},
	}, nil
}

func (ar AccountRepo) GetPrimaryAccounts(ctx context.Context, userID string) (map[string]string, error) {
	return map[string]string{
		mailcapability.URN: userID,
	}, nil
}

type Session struct {
	Capabilities    map[string]interface{} `json:"capabilities"`
	Accounts        map[string]Account     `json:"accounts"`
	PrimaryAccounts map[string]string      `json:"primaryAccounts"`
	Username        string                 `json:"username"`
	APIURL          string                 `json:"apiUrl"`
	State           string                 `json:"state"`
}

type Account struct {
	Name                string                 `json:"name"`
	IsPersonal          bool                   `json:"isPersonal"`
	IsReadOnly          bool                   `json:"isReadOnly"`
	AccountCapabilities map[string]interface{} `json:"accountCapabilities"`
}

type SessionHandler struct {
	AccountRepo  AccountRepoer
	Capabilities map[string]interface{}
	APIURL       string

	//CacheControlHeader contains a optional cache control header
	CacheControlHeader [2]string

	//stateHashingFunc is the hash algo used to generate a state value
	stateHashingFunc func([]byte) []byte

	logger mlog.Log
}

func NewSessionHandler(accountRepo AccountRepoer, capabilities map[string]interface{}, apiURL string, logger mlog.Log) SessionHandler {
	return SessionHandler{
		AccountRepo:  accountRepo,
		Capabilities: capabilities,
		APIURL:       apiURL,
		stateHashingFunc: func(b []byte) []byte {
			md5sum := md5.Sum(b)
			return md5sum[:]
		},
		logger: logger,
	}
}

// SessionState returns an opaque value that changes when the server
// configuration changes. It is derived from the advertised capabilities and
// urls, which is everything in the session object that does not depend on the
// authenticated user.
func (sh SessionHandler) SessionState() string {
	staticParts, err := json.Marshal(Session{
		Capabilities: sh.Capabilities,
		APIURL:       sh.APIURL,
	})
	if err != nil {
		//the capabilities are static and marshalable, so this does not happen
		return ""
	}
	return base64.StdEncoding.EncodeToString(sh.stateHashingFunc(staticParts))
}

func (sh SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {

	user, ok := r.Context().Value(CtxUserKey).(string)
	if !ok || user == "" {
		//user is not authenticated so send error
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	accounts, err := sh.AccountRepo.GetAccounts(r.Context(), user)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	primaryAccounts, err := sh.AccountRepo.GetPrimaryAccounts(r.Context(), user)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	result := Session{
		Capabilities:    sh.Capabilities,
		Accounts:        accounts,
		PrimaryAccounts: primaryAccounts,
		Username:        user,
		APIURL:          sh.APIURL,
		State:           sh.SessionState(),
	}

	resultBytes, err := json.Marshal(result)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set(HeaderContentType, HeaderContentTypeJSON)
	if sh.CacheControlHeader[0] != "" {
		w.Header().Set(sh.CacheControlHeader[0], sh.CacheControlHeader[1])
	}

	addCORSAllowedOriginHeader(w, r)
	w.Write(resultBytes)
}
