package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/crewmux/crewmux/core/cache"
	"github.com/crewmux/crewmux/core/configstore"
	"github.com/crewmux/crewmux/core/crew"
	"github.com/crewmux/crewmux/core/infra/bus"
	"github.com/crewmux/crewmux/core/tenant"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "handler":
		runHandlerCmd(args)
	case "binding":
		runBindingCmd(args)
	case "config":
		runConfigCmd(args)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: crewmuxctl <command> [args]

commands:
  handler invalidate [-domain D] [-handler H]   drop cached handlers and broadcast
  binding show <conversation-id>                print a conversation's tenant binding
  binding invalidate <conversation-id>          drop a conversation's tenant binding
  config put -file <seed.yaml>                  store a config document
  config show -scope <scope> -id <scope-id>     print a stored document
  config merged -domain <d> [-account <a>]      print the effective merged config
  config seed -dir <dir>                        seed documents from a directory

flags common to all commands:
  -redis  Redis URL  (default redis://localhost:6379, env REDIS_URL)
  -nats   NATS URL   (default nats://localhost:4222, env NATS_URL)`)
}

type flagSet struct {
	*flag.FlagSet
	redisURL *string
	natsURL  *string
}

func newFlagSet(name string) *flagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return &flagSet{
		FlagSet:  fs,
		redisURL: fs.String("redis", envOr("REDIS_URL", "redis://localhost:6379"), "redis url"),
		natsURL:  fs.String("nats", envOr("NATS_URL", "nats://localhost:4222"), "nats url"),
	}
}

func (fs *flagSet) ParseArgs(args []string) {
	_ = fs.Parse(args)
}

func runHandlerCmd(args []string) {
	if len(args) < 1 || args[0] != "invalidate" {
		usage()
		os.Exit(1)
	}
	fs := newFlagSet("handler invalidate")
	domain := fs.String("domain", "", "domain to invalidate (empty for all)")
	handler := fs.String("handler", "", "handler id to invalidate (empty for all in domain)")
	fs.ParseArgs(args[1:])

	layered := newLayered(*fs.redisURL)
	prefix := crew.CacheKeyPrefix(*domain, *handler)
	check(layered.InvalidatePrefix(context.Background(), prefix))

	// Best effort: running routers also drop their Tier-1 state.
	if natsBus, err := bus.NewNatsBus(*fs.natsURL); err == nil {
		defer natsBus.Close()
		packet, err := bus.NewPacket(bus.KindInvalidate, "crewmuxctl", "", map[string]any{
			"key":    prefix,
			"prefix": true,
		})
		check(err)
		check(natsBus.Publish(bus.SubjectInvalidate, packet))
	} else {
		fmt.Fprintf(os.Stderr, "warning: NATS unreachable, peers keep Tier-1 state until TTL: %v\n", err)
	}
	fmt.Printf("invalidated %s\n", prefix)
}

func runBindingCmd(args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	sub := args[0]
	fs := newFlagSet("binding " + sub)
	fs.ParseArgs(args[1:])
	if fs.NArg() < 1 {
		fail("conversation id required")
	}
	conversationID := fs.Arg(0)

	resolver := tenant.NewResolver(newLayered(*fs.redisURL), nil)
	switch sub {
	case "show":
		binding, err := resolver.Lookup(context.Background(), conversationID)
		check(err)
		printJSON(binding)
	case "invalidate":
		check(resolver.InvalidateConversation(context.Background(), conversationID))
		fmt.Printf("binding dropped for %s\n", conversationID)
	default:
		usage()
		os.Exit(1)
	}
}

func runConfigCmd(args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	switch args[0] {
	case "put":
		fs := newFlagSet("config put")
		file := fs.String("file", "", "seed yaml file (scope, scope_id, data)")
		fs.ParseArgs(args[1:])
		if *file == "" {
			fail("config file required")
		}
		store := newStore(*fs.redisURL)
		defer store.Close()
		doc := loadSeedDoc(*file)
		check(store.Set(context.Background(), doc))
		fmt.Printf("stored %s/%s revision %d\n", doc.Scope, doc.ScopeID, doc.Revision)
	case "show":
		fs := newFlagSet("config show")
		scope := fs.String("scope", string(configstore.ScopeDomain), "scope: base, domain or account")
		id := fs.String("id", "", "scope id")
		fs.ParseArgs(args[1:])
		store := newStore(*fs.redisURL)
		defer store.Close()
		doc, err := store.Get(context.Background(), configstore.Scope(*scope), *id)
		check(err)
		printJSON(doc)
	case "merged":
		fs := newFlagSet("config merged")
		domain := fs.String("domain", "", "domain name")
		account := fs.String("account", "", "internal account id")
		fs.ParseArgs(args[1:])
		if *domain == "" {
			fail("domain required")
		}
		store := newStore(*fs.redisURL)
		defer store.Close()
		merged, err := store.Merged(context.Background(), *domain, *account)
		check(err)
		printJSON(merged)
	case "seed":
		fs := newFlagSet("config seed")
		dir := fs.String("dir", "config/domains", "seed directory")
		fs.ParseArgs(args[1:])
		store := newStore(*fs.redisURL)
		defer store.Close()
		n, err := store.SeedFromDir(context.Background(), *dir)
		check(err)
		fmt.Printf("seeded %d documents\n", n)
	default:
		usage()
		os.Exit(1)
	}
}

func newLayered(redisURL string) *cache.Layered {
	tier, err := cache.NewRedisTier(redisURL)
	check(err)
	return cache.New(cache.Options{Redis: tier})
}

func newStore(redisURL string) *configstore.Store {
	store, err := configstore.New(redisURL)
	check(err)
	return store
}

// loadSeedDoc reads a YAML document in the seed file shape.
func loadSeedDoc(path string) *configstore.Document {
	// #nosec G304 -- path comes from the operator's command line.
	data, err := os.ReadFile(path)
	check(err)
	var seed struct {
		Scope   string         `yaml:"scope"`
		ScopeID string         `yaml:"scope_id"`
		Data    map[string]any `yaml:"data"`
	}
	check(yaml.Unmarshal(data, &seed))
	if seed.Scope == "" {
		fail("seed file has no scope")
	}
	return &configstore.Document{
		Scope:   configstore.Scope(seed.Scope),
		ScopeID: seed.ScopeID,
		Data:    seed.Data,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	check(err)
	fmt.Println(string(data))
}

func check(err error) {
	if err != nil {
		fail(err.Error())
	}
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, "error: "+msg)
	os.Exit(1)
}
