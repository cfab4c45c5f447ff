package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/annel0/woodtypes/internal/auth"
	"github.com/annel0/woodtypes/internal/blocksource"
	"github.com/annel0/woodtypes/internal/config"
	"github.com/annel0/woodtypes/internal/eventbus"
	"github.com/annel0/woodtypes/internal/storage"
	"github.com/annel0/woodtypes/internal/woodtype"
)

const defaultNATSURL = "nats://localhost:4222"

func main() {
	var (
		command    = flag.String("cmd", "scan", "Command: classify, scan, dump, token, tail")
		configPath = flag.String("config", "", "Path to YAML config (classifier rules, auth, eventbus)")
		blockID    = flag.String("id", "", "Block identifier for classify (e.g. minecraft:oak_log)")
		material   = flag.String("material", "", "Block material for classify (wood, nether_wood, leaves)")
		dir        = flag.String("dir", "", "Block definitions directory for scan")
		dataPath   = flag.String("data", "", "Storage directory for dump")
		subject    = flag.String("subject", "admin", "Token subject")
		admin      = flag.Bool("admin", true, "Issue admin token")
		ttl        = flag.Duration("ttl", auth.DefaultTTL, "Token lifetime")
		natsURL    = flag.String("nats", "", "NATS URL for tail")
		eventTypes = flag.String("types", "", "Event types filter for tail (comma-separated)")
		asJSON     = flag.Bool("json", false, "Print JSON instead of text")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	switch *command {
	case "classify":
		err = classify(cfg, *blockID, *material)
	case "scan":
		if *dir == "" {
			*dir = cfg.Blocks.Dir
		}
		err = scan(cfg, *dir, *asJSON)
	case "dump":
		if *dataPath == "" {
			*dataPath = cfg.Storage.Path
		}
		err = dump(*dataPath, *asJSON)
	case "token":
		err = issueToken(cfg, *subject, *admin, *ttl)
	case "tail":
		url := *natsURL
		if url == "" {
			url = cfg.EventBus.URL
		}
		if url == "" {
			url = defaultNATSURL
		}
		err = tail(url, cfg.EventBus.Stream, cfg.EventBus.RetentionDuration(), parseStringList(*eventTypes))
	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: classify, scan, dump, token, tail")
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("❌ %s failed: %v", *command, err)
	}
}

// classify показывает, какой компонент получится из одного блока
func classify(cfg *config.Config, rawID, material string) error {
	if rawID == "" {
		return fmt.Errorf("-id is required")
	}
	id, err := woodtype.ParseIdentifierIn(cfg.Blocks.Namespace, rawID)
	if err != nil {
		return err
	}
	classifier, err := cfg.Classifier.Classifier()
	if err != nil {
		return err
	}

	t, name, ok := classifier.Classify(id, woodtype.Block{Material: woodtype.Material(material)})
	if !ok {
		fmt.Printf("🚫 %s: not a wood component\n", id)
		return nil
	}
	fmt.Printf("🌳 %s -> %s of %s\n", id, t, woodtype.NewIdentifier(id.Namespace, name))
	return nil
}

// scan прогоняет каталог блоков через пустой реестр и печатает типы дерева
func scan(cfg *config.Config, dir string, asJSON bool) error {
	ctx := context.Background()
	defs, err := blocksource.LoadDir(ctx, dir)
	if err != nil {
		return err
	}
	classifier, err := cfg.Classifier.Classifier()
	if err != nil {
		return err
	}

	reg := woodtype.NewRegistry(woodtype.WithClassifier(classifier))
	res, err := blocksource.Scan(ctx, reg, defs, cfg.Blocks.Namespace)
	if err != nil {
		return err
	}

	snaps := make([]woodtype.Snapshot, 0, reg.Len())
	for _, wt := range reg.All() {
		snaps = append(snaps, wt.Snapshot())
	}

	if asJSON {
		return printJSON(map[string]interface{}{"result": res, "wood_types": snaps})
	}

	fmt.Printf("📦 %d blocks: %d classified, %d unclassified, %d rejected\n",
		res.Total, res.Classified, res.Unclassified, res.Rejected)
	printSnapshots(snaps)
	return nil
}

// dump печатает сохранённые в BadgerDB снимки
func dump(dataPath string, asJSON bool) error {
	store, err := storage.NewSnapshotStore(dataPath)
	if err != nil {
		return err
	}
	defer store.Close()

	snaps, err := store.LoadAll()
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(snaps)
	}

	fmt.Printf("💾 %s: %d snapshots\n", store.Path(), len(snaps))
	printSnapshots(snaps)
	return nil
}

func issueToken(cfg *config.Config, subject string, admin bool, ttl time.Duration) error {
	secret, err := cfg.Auth.Secret()
	if err != nil {
		return err
	}
	if secret == nil {
		return fmt.Errorf("jwt secret is not configured (auth.jwt_secret or WOODTYPES_JWT_SECRET)")
	}

	issuer, err := auth.NewTokenIssuer(secret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}
	token, err := issuer.Issue(subject, admin, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

// tail выводит события реестра из JetStream до Ctrl+C
func tail(url, stream string, retention time.Duration, types []string) error {
	bus, err := eventbus.NewJetStreamBus(url, stream, retention)
	if err != nil {
		return err
	}
	defer bus.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("🎬 Tailing %s on %s\n", stream, url)
	sub, err := bus.Subscribe(ctx, eventbus.Filter{Types: types}, func(_ context.Context, ev *eventbus.Envelope) {
		p, err := eventbus.DecodePayload(ev)
		if err != nil {
			fmt.Printf("%s [%s] <bad payload: %v>\n", ev.Timestamp.Format(time.RFC3339), ev.EventType, err)
			return
		}
		fmt.Printf("%s [%s] %s\n", ev.Timestamp.Format(time.RFC3339), ev.EventType, describe(p))
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	<-ctx.Done()
	return nil
}

func describe(p eventbus.Payload) string {
	parts := []string{p.WoodType}
	if p.ComponentType != "" {
		parts = append(parts, p.ComponentType+"="+p.BlockID)
	}
	if p.Subscription != "" {
		parts = append(parts, "sub="+p.Subscription)
	}
	if p.Error != "" {
		parts = append(parts, "error="+p.Error)
	}
	return strings.Join(parts, " ")
}

func printSnapshots(snaps []woodtype.Snapshot) {
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID < snaps[j].ID })
	for _, s := range snaps {
		types := make([]string, 0, len(s.Components))
		for t := range s.Components {
			types = append(types, string(t))
		}
		sort.Strings(types)
		fmt.Printf("  🌳 %-28s %-6s [%s]\n", s.ID, s.LogType, strings.Join(types, ", "))
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
