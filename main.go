// Command jmapd serves mailboxes and messages over JMAP (RFC 8620/8621).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/mjl-/sconf"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/jmapd/jmapd/config"
	"github.com/jmapd/jmapd/jmapserver/httphandler"
	"github.com/jmapd/jmapd/jmapserver/jaccount"
	"github.com/jmapd/jmapd/mlog"
	"github.com/jmapd/jmapd/store"
)

var usage = strings.TrimSpace(`
usage:
	jmapd serve -config jmapd.conf
	jmapd describeconf
	jmapd backup srcdbfile dstdbfile
	jmapd hashpassword
`)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
	}

	switch args[0] {
	case "serve":
		serve(args[1:])
	case "describeconf":
		describeconf()
	case "backup":
		backup(args[1:])
	case "hashpassword":
		hashpassword()
	default:
		flag.Usage()
	}
}

func serve(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "jmapd.conf", "path to the configuration file")
	fs.Parse(args)

	var cfg config.Static
	if err := sconf.ParseFile(*configPath, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "parsing config file: %s\n", err)
		os.Exit(1)
	}
	applyDefaults(&cfg)

	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "unknown log level %q\n", cfg.LogLevel)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	log := mlog.New("main", nil)

	ctx := context.Background()

	acc, err := store.OpenAccount(ctx, cfg.DataDir, cfg.Account.Name)
	if err != nil {
		log.Fatalx("opening account", err, "account", cfg.Account.Name)
	}
	defer acc.Close()
	ja := jaccount.NewJAccount(acc, cfg.Account.Name, mlog.New("jaccount", nil))

	getJAccount := func(ctx context.Context, user string) (jaccount.JAccounter, error) {
		if user != cfg.Account.Name {
			return nil, fmt.Errorf("unknown account %q", user)
		}
		return ja, nil
	}

	handler := httphandler.NewHandler(
		cfg.Hostname,
		cfg.Path,
		cfg.Port,
		httphandler.Credentials{Account: cfg.Account.Name, PasswordHash: cfg.Account.PasswordHash},
		getJAccount,
		cfg.CORSAllowFrom,
		rate.Limit(cfg.RateLimit.RequestsPerSecond),
		cfg.RateLimit.Burst,
		mlog.New("httphandler", nil),
	)

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Info("listening", "addr", addr, "path", cfg.Path)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalx("serving http", err)
	}
}

func applyDefaults(cfg *config.Static) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Path == "" {
		cfg.Path = "/jmap/"
	}
	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = 10
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 20
	}
}

// describeconf prints an example config file with docs to stdout.
func describeconf() {
	cfg := config.Static{
		DataDir:  "data",
		LogLevel: "info",
		Hostname: "localhost",
		Port:     8080,
		Path:     "/jmap/",
		Account: config.Account{
			Name:         "user@example.org",
			PasswordHash: "$2a$10$...",
		},
		RateLimit: config.RateLimit{
			RequestsPerSecond: 10,
			Burst:             20,
		},
	}
	if err := sconf.Describe(os.Stdout, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "describing config: %s\n", err)
		os.Exit(1)
	}
}

// backup makes a consistent copy of a closed account database.
func backup(args []string) {
	if len(args) != 2 {
		flag.Usage()
	}
	if err := store.BackupDB(args[0], args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "backup: %s\n", err)
		os.Exit(1)
	}
}

// hashpassword reads a password from stdin and prints the bcrypt hash for use
// in the config file.
func hashpassword() {
	fmt.Fprintln(os.Stderr, "password: ")
	pw, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading password: %s\n", err)
		os.Exit(1)
	}
	pw = strings.TrimRight(pw, "\r\n")
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hashing password: %s\n", err)
		os.Exit(1)
	}
	fmt.Println(string(hash))
}
