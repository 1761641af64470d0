package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gemcraft.ai/internal/gems/model"
	"gemcraft.ai/internal/gems/trust"
	"gemcraft.ai/internal/gems/tuning"
	"gemcraft.ai/internal/persistence/trustdb"
	"gemcraft.ai/internal/persistence/trustfile"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "list":
		err = listCmd(os.Stdout, args)
	case "trust":
		err = trustCmd(os.Stdout, args, true)
	case "untrust":
		err = trustCmd(os.Stdout, args, false)
	case "migrate":
		err = migrateCmd(os.Stdout, args)
	case "validate":
		err = validateCmd(os.Stdout, args)
	case "journal":
		err = journalCmd(os.Stdout, args)
	case "state":
		err = stateCmd(os.Stdout, args)
	case "reload":
		err = reloadCmd(os.Stdout, args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, os.Args[1]+":", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: gemadmin <list|trust|untrust|migrate|validate|journal|state|reload> [flags]")
}

type storeFlags struct {
	dataDir *string
	kind    *string
	path    *string
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		dataDir: fs.String("data", "./data", "runtime data directory"),
		kind:    fs.String("store", "sqlite", "trust store: sqlite or yaml"),
		path:    fs.String("path", "", "trust store path (default: <data>/trust.sqlite or <data>/trusts.yml)"),
	}
}

// open returns the selected store. The server must not be running against a sqlite store
// that is edited here.
func (f storeFlags) open() (trust.Store, func(), error) {
	log := zerolog.Nop()
	switch strings.ToLower(strings.TrimSpace(*f.kind)) {
	case "", "sqlite":
		p := *f.path
		if p == "" {
			p = filepath.Join(*f.dataDir, "trust.sqlite")
		}
		s, err := trustdb.OpenSQLite(p, log)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "yaml":
		p := *f.path
		if p == "" {
			p = filepath.Join(*f.dataDir, "trusts.yml")
		}
		return trustfile.New(p, log), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", *f.kind)
	}
}

func listCmd(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	actor := fs.String("actor", "", "only list edges from this actor")
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, closeFn, err := sf.open()
	if err != nil {
		return err
	}
	defer closeFn()
	f := trust.New(store, zerolog.Nop())
	if err := f.Load(context.Background()); err != nil {
		return err
	}
	snap := f.Snapshot()
	ids := make([]uuid.UUID, 0, len(snap))
	for a := range snap {
		ids = append(ids, a)
	}
	sortUUIDs(ids)
	for _, a := range ids {
		if *actor != "" && a.String() != strings.ToLower(*actor) {
			continue
		}
		for _, b := range snap[a] {
			fmt.Fprintf(out, "%s -> %s\n", a, b)
		}
	}
	return nil
}

func trustCmd(out io.Writer, args []string, add bool) error {
	name := "untrust"
	if add {
		name = "trust"
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	sf := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("expected <truster> <trustee>")
	}
	a, err := uuid.Parse(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("truster: %w", err)
	}
	b, err := uuid.Parse(fs.Arg(1))
	if err != nil {
		return fmt.Errorf("trustee: %w", err)
	}
	store, closeFn, err := sf.open()
	if err != nil {
		return err
	}
	defer closeFn()
	ctx := context.Background()
	f := trust.New(store, zerolog.Nop())
	if err := f.Load(ctx); err != nil {
		return err
	}
	if add {
		added, err := f.Trust(ctx, a, b)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "trust %s -> %s added=%t\n", a, b, added)
		return nil
	}
	fmt.Fprintf(out, "untrust %s -> %s removed=%t\n", a, b, f.Untrust(ctx, a, b))
	return nil
}

// migrateCmd copies a trusts.yml relation into a sqlite store, replacing its contents.
func migrateCmd(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	from := fs.String("from", "", "trusts.yml path (default: <data>/trusts.yml)")
	to := fs.String("to", "", "sqlite path (default: <data>/trust.sqlite)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *from == "" {
		*from = filepath.Join(*dataDir, "trusts.yml")
	}
	if *to == "" {
		*to = filepath.Join(*dataDir, "trust.sqlite")
	}
	ctx := context.Background()
	edges, err := trustfile.New(*from, zerolog.Nop()).Load(ctx)
	if err != nil {
		return err
	}
	db, err := trustdb.OpenSQLite(*to, zerolog.Nop())
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Save(ctx, edges); err != nil {
		return err
	}
	n, err := db.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "migrate ok: from=%s to=%s edges=%d\n", *from, *to, n)
	return nil
}

func validateCmd(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	path := fs.String("config", "./configs/gems.yaml", "gem config path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := tuning.Load(*path)
	if err != nil {
		return err
	}
	var disabled []string
	for _, g := range model.AllGems {
		if !cfg.GemEnabled(g) {
			disabled = append(disabled, string(g))
		}
	}
	fmt.Fprintf(out, "config ok: path=%s tick_rate_hz=%d equip_slot=%d reconcile_policy=%s disabled=%s\n",
		*path, cfg.TickRateHz, cfg.EquipSlot, cfg.ReconcilePolicy, strings.Join(disabled, ","))
	return nil
}

func sortUUIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
