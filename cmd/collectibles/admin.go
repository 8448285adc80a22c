package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/Strob0t/collectibles/internal/adapter/memory"
	"github.com/Strob0t/collectibles/internal/adapter/postgres"
	"github.com/Strob0t/collectibles/internal/config"
	"github.com/Strob0t/collectibles/internal/domain/item"
)

// runAdmin dispatches admin subcommands (migrate, migration-version, list-items, seed).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "migrate":
		return runAdminMigrate(args[1:])
	case "migration-version":
		return runAdminMigrationVersion(args[1:])
	case "list-items":
		return runAdminListItems(args[1:])
	case "seed":
		return runAdminSeed(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: collectibles admin <command> [options]

Commands:
  migrate             Apply pending PostgreSQL migrations
  migration-version   Print the current schema version
  list-items          List catalog items stored in PostgreSQL
  seed                Insert the demo items into PostgreSQL
  help                Show this help message

All commands read collectibles.yaml and COLLECTIBLES_* variables; --config
selects another file.

Examples:
  collectibles admin migrate
  collectibles admin list-items --config /etc/collectibles.yaml
  collectibles admin seed --yes
`)
}

// loadAdminConfig adds --config to fs, parses args and loads the config.
func loadAdminConfig(fs *flag.FlagSet, args []string) (*config.Config, error) {
	path := fs.String("config", config.DefaultConfigFile, "path to YAML config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.LoadFrom(*path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func runAdminMigrate(args []string) error {
	cfg, err := loadAdminConfig(flag.NewFlagSet("migrate", flag.ContinueOnError), args)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return err
	}
	v, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Migrations applied (version %d)\n", v)
	return nil
}

func runAdminMigrationVersion(args []string) error {
	cfg, err := loadAdminConfig(flag.NewFlagSet("migration-version", flag.ContinueOnError), args)
	if err != nil {
		return err
	}
	v, err := postgres.MigrationVersion(context.Background(), cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	fmt.Println(v)
	return nil
}

func openAdminStore(ctx context.Context, cfg *config.Config) (*postgres.Store, func(), error) {
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return postgres.NewStore(pool), pool.Close, nil
}

func runAdminListItems(args []string) error {
	cfg, err := loadAdminConfig(flag.NewFlagSet("list-items", flag.ContinueOnError), args)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, cleanup, err := openAdminStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	items, err := store.ListItems(ctx)
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}
	if len(items) == 0 {
		fmt.Println("No items found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tPRICE\tUPDATED")
	for i := range items {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%.2f\t%s\n",
			items[i].ID, items[i].Name, items[i].Price, items[i].UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runAdminSeed(args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	cfg, err := loadAdminConfig(fs, args)
	if err != nil {
		return err
	}
	if !*yes {
		ok, err := confirm(fmt.Sprintf("Insert %d demo items? [y/N] ", len(memory.DemoItems)))
		if err != nil {
			return fmt.Errorf("read confirmation: %w", err)
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "Aborted.")
			return nil
		}
	}

	ctx := context.Background()
	store, cleanup, err := openAdminStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	for _, req := range memory.DemoItems {
		if err := item.ValidateCreateRequest(&req); err != nil {
			return err
		}
		it, err := store.CreateItem(ctx, req)
		if err != nil {
			return fmt.Errorf("create %q: %w", req.Name, err)
		}
		fmt.Fprintf(os.Stderr, "Item created: %s (id=%d)\n", it.Name, it.ID)
	}
	return nil
}

// confirm asks a yes/no question on an interactive terminal. Non-interactive
// stdin is treated as "no".
func confirm(prompt string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) { //nolint:gosec // fd fits in int
		return false, nil
	}
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
