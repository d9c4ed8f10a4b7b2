// Package config holds the static configuration of the server, parsed from a
// config file in sconf format.
package config

// Static is the configuration of the server. Changes require a restart.
type Static struct {
	DataDir  string `sconf-doc:"Directory below which the account databases are stored."`
	LogLevel string `sconf:"optional" sconf-doc:"Level for logging: debug, info, warn, error. Default info."`

	Hostname string `sconf-doc:"Hostname this server is reachable on, used in the urls of the session object."`
	Port     int    `sconf-doc:"Port to listen on for the JMAP endpoints."`

	Path string `sconf:"optional" sconf-doc:"Absolute path the JMAP handler is mounted on, with trailing slash. Default /jmap/."`

	Account Account `sconf-doc:"Account that can authenticate to this server."`

	CORSAllowFrom []string `sconf:"optional" sconf-doc:"Hosts allowed to access the JMAP endpoints from a browser."`

	RateLimit RateLimit `sconf:"optional" sconf-doc:"Request rate limiting over all clients together."`
}

// Account is the single account served.
type Account struct {
	Name string `sconf-doc:"Login name, also the JMAP account id."`

	// Generate with: jmapd hashpassword
	PasswordHash string `sconf-doc:"Bcrypt hash of the account password."`
}

type RateLimit struct {
	RequestsPerSecond float64 `sconf:"optional" sconf-doc:"Maximum sustained requests per second. Default 10."`
	Burst             int     `sconf:"optional" sconf-doc:"Maximum burst of requests. Default 20."`
}
