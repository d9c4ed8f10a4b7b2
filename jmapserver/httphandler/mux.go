package httphandler

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/jmapd/jmapd/jmapserver/capabilitier"
	"github.com/jmapd/jmapd/jmapserver/core"
	"github.com/jmapd/jmapd/jmapserver/mailcapability"
	"github.com/jmapd/jmapd/metrics"
	"github.com/jmapd/jmapd/mlog"
)

type ctxKey string

const (
	//CtxUserKey holds the authenticated username in the request context
	CtxUserKey ctxKey = "user"

	//ctxCORSAllowOriginKey holds the origin that handlers must echo in the
	//Access-Control-Allow-Origin header
	ctxCORSAllowOriginKey ctxKey = "corsAllowOrigin"

	corsAllowOriginHeader = "Access-Control-Allow-Origin"

	sessionRoute = "session"
	apiRoute     = "api"
	metricsRoute = "metrics"
)

// Credentials is the single configured account that may authenticate.
// PasswordHash is a bcrypt hash.
type Credentials struct {
	Account      string
	PasswordHash string
}

type JMAPServerHandler struct {
	//Path is the absolute path this handler is mounted on, including trailing slash
	Path string

	//Hostname and Port are used to construct the absolute urls in the session object
	Hostname string
	Port     int

	//CORSAllowFrom defines the hosts that can access JMAP resources from a browser
	CORSAllowFrom []string

	Credentials Credentials

	Logger mlog.Log

	sessionPath, apiPath, metricsPath string

	sessionHandler, apiHandler, metricsHandler http.Handler

	limiter *rate.Limiter
}

// NewHandler assembles the session and api handlers with the core and mail
// capabilities. getJAccount opens the per-user account adaptor for
// authenticated requests. reqsPerSec/burst bound the request rate over all
// clients together.
func NewHandler(hostname, path string, port int, creds Credentials, getJAccount JAccounterFetcher, corsAllowFrom []string, reqsPerSec rate.Limit, burst int, logger mlog.Log) JMAPServerHandler {

	coreSettings := core.NewDefaultCoreCapabilitySettings()

	capabilities := capabilitier.Capabilitiers{
		core.NewCore(coreSettings),
		mailcapability.NewMailCapability(mailcapability.NewDefaultMailCapabilitySettings(), logger),
	}

	sessionCapabilityInfo := make(map[string]interface{})
	for _, capability := range capabilities {
		sessionCapabilityInfo[capability.Urn()] = capability.SessionObjectInfo()
	}

	apiURL := fmt.Sprintf("https://%s:%d%s%s", hostname, port, path, apiRoute)

	sessionHandler := NewSessionHandler(NewAccountRepo(), sessionCapabilityInfo, apiURL, logger)

	result := JMAPServerHandler{
		Hostname:      hostname,
		Port:          port,
		Path:          path,
		CORSAllowFrom: corsAllowFrom,
		Credentials:   creds,
		Logger:        logger,

		sessionHandler: sessionHandler,
		apiHandler:     NewAPIHandler(capabilities, coreSettings, sessionHandler, getJAccount, logger),
		metricsHandler: promhttp.Handler(),

		sessionPath: path + sessionRoute,
		apiPath:     path + apiRoute,
		metricsPath: path + metricsRoute,

		limiter: rate.NewLimiter(reqsPerSec, burst),
	}

	return result
}

type AuthenticationMiddleware struct {
	Credentials Credentials
	Logger      mlog.Log
}

func NewAuthenticationMiddleware(creds Credentials, logger mlog.Log) AuthenticationMiddleware {
	return AuthenticationMiddleware{
		Credentials: creds,
		Logger:      logger,
	}
}

func (authM AuthenticationMiddleware) Authenticate(hf http.Handler) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {

		//use basic authentication for now
		username, password, ok := r.BasicAuth()
		if !ok {
			rw.Header().Add("WWW-Authenticate", "Basic realm=\"Authenticate in order to use JMAP\"")
			rw.WriteHeader(http.StatusUnauthorized)
			return
		}

		//remove the auth header so it does not end up in the logs when we dump requests in debug
		r.Header.Del("Authorization")

		userOK := subtle.ConstantTimeCompare([]byte(username), []byte(authM.Credentials.Account)) == 1
		passErr := bcrypt.CompareHashAndPassword([]byte(authM.Credentials.PasswordHash), []byte(password))
		if !userOK || passErr != nil {
			metrics.AuthFailures.Inc()
			authM.Logger.Debug("authentication failed", "username", username)
			rw.WriteHeader(http.StatusUnauthorized)
			rw.Write([]byte("incorrect username/password"))
			return
		}

		ctx := context.WithValue(r.Context(), CtxUserKey, username)
		hf.ServeHTTP(rw, r.WithContext(ctx))
	}
}

type RateLimitMiddleware struct {
	Limiter *rate.Limiter
}

func NewRateLimitMiddleware(limiter *rate.Limiter) RateLimitMiddleware {
	return RateLimitMiddleware{Limiter: limiter}
}

func (rlm RateLimitMiddleware) Limit(h http.Handler) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !rlm.Limiter.Allow() {
			rw.Header().Set("Retry-After", "1")
			rw.WriteHeader(http.StatusTooManyRequests)
			return
		}
		h.ServeHTTP(rw, r)
	}
}

type CORSMiddleware struct {
	AllowFrom      []string
	HeadersAllowed []string
}

func NewCORSMiddleware(allowFrom, headersAllowed []string) CORSMiddleware {
	return CORSMiddleware{
		AllowFrom:      allowFrom,
		HeadersAllowed: headersAllowed,
	}
}

func (cm CORSMiddleware) HandleMethodOptions(h http.HandlerFunc) http.HandlerFunc {
	//https://fetch.spec.whatwg.org/
	return func(rw http.ResponseWriter, r *http.Request) {

		var finalAllowFrom string
		for i, allowFrom := range cm.AllowFrom {
			if i == 0 {
				finalAllowFrom = allowFrom
			}

			//when there are multiple allows, then we should reply with the origins host
			if allowFrom == r.Host {
				finalAllowFrom = r.Host
			}
		}

		if r.Method == http.MethodOptions {
			if finalAllowFrom != "" {
				rw.Header().Set(corsAllowOriginHeader, finalAllowFrom)
				rw.Header().Set("Access-Control-Allow-Headers", strings.Join(cm.HeadersAllowed, ","))
			}
			rw.Write(nil)
			return
		}

		ctx := r.Context()
		if finalAllowFrom != "" {
			//save the cors allow origin host in ctx because we need it later
			ctx = context.WithValue(ctx, ctxCORSAllowOriginKey, finalAllowFrom)
		}

		h.ServeHTTP(rw, r.WithContext(ctx))
	}
}

func (jh JMAPServerHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {

	var getRejectUnsupportedMethodsHandler = func(acceptedMethods []string, nextHandler http.Handler) func(resp http.ResponseWriter, req *http.Request) {
		return func(resp http.ResponseWriter, req *http.Request) {
			var methodAccepted bool
			for _, acceptedMethod := range acceptedMethods {
				if req.Method == acceptedMethod {
					methodAccepted = true
					break
				}
			}
			if !methodAccepted {
				resp.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			nextHandler.ServeHTTP(resp, req)
		}
	}

	instrument := func(handlerName string, h http.Handler) http.Handler {
		return promhttp.InstrumentHandlerCounter(metrics.HTTPRequests.MustCurryWith(prometheus.Labels{"handler": handlerName}), h)
	}

	authMW := NewAuthenticationMiddleware(jh.Credentials, jh.Logger)
	corsMW := NewCORSMiddleware(jh.CORSAllowFrom, []string{"Authorization", "*"})
	rateMW := NewRateLimitMiddleware(jh.limiter)

	//create a new mux for routing in this path
	mux := http.NewServeMux()
	mux.HandleFunc(jh.sessionPath, getRejectUnsupportedMethodsHandler([]string{http.MethodGet, http.MethodOptions},
		instrument("session",
			rateMW.Limit(
				corsMW.HandleMethodOptions(
					authMW.Authenticate(jh.sessionHandler))))))

	mux.HandleFunc(jh.apiPath, getRejectUnsupportedMethodsHandler([]string{http.MethodPost, http.MethodOptions},
		instrument("api",
			rateMW.Limit(
				corsMW.HandleMethodOptions(
					authMW.Authenticate(jh.apiHandler))))))

	mux.HandleFunc(jh.metricsPath, getRejectUnsupportedMethodsHandler([]string{http.MethodGet},
		jh.metricsHandler))

	mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		//if nothing matches, we exit here
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("page not found"))
	})

	mux.ServeHTTP(rw, r)
}

// addCORSAllowedOriginHeader sets a CORS header when a context value indicates we should do so
func addCORSAllowedOriginHeader(w http.ResponseWriter, r *http.Request) {
	if corsAllowOrigin := r.Context().Value(ctxCORSAllowOriginKey); corsAllowOrigin != nil {
		if corsAllowOriginStr, ok := corsAllowOrigin.(string); ok && corsAllowOriginStr != "" {
			w.Header().Set(corsAllowOriginHeader, corsAllowOriginStr)
		}
	}
}
