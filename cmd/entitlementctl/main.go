// entitlementctl is the operator CLI for the entitlement store. It talks to
// the database directly, so it works while the HTTP service is down.
//
// Commands:
//
//	promote --username NAME          make NAME a super-admin and print its security code
//	genkey  --as ADMIN --days N      issue a license key (0 days is lifetime)
//	keys    --as ADMIN               list license keys, newest first
//	users   --as STAFF               list accounts by uid
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/Skotchmaster/entitlement/internal/config"
	"github.com/Skotchmaster/entitlement/internal/db"
	"github.com/Skotchmaster/entitlement/internal/logging"
	"github.com/Skotchmaster/entitlement/internal/repo"
	"github.com/Skotchmaster/entitlement/internal/service"
)

const usage = `usage: entitlementctl <command> [flags]

commands:
  promote   make an existing account a super-admin
  genkey    issue a license key
  keys      list license keys
  users     list accounts
`

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	driver   string
	dsn      string
	logLevel string
	as       string
	username string
	days     int
	page     int
	size     int
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(out, usage)
		return nil
	}
	cmd, rest := args[0], args[1:]

	var opts options
	flagSet := pflag.NewFlagSet("entitlementctl "+cmd, pflag.ContinueOnError)
	flagSet.SetOutput(out)
	flagSet.StringVar(&opts.driver, "driver", config.EnvDefault("DB_DRIVER", config.DriverSQLite), "database driver (sqlite or postgres)")
	flagSet.StringVar(&opts.dsn, "dsn", "", "sqlite path or postgres url (default from SQLITE_PATH or DATABASE_URL)")
	flagSet.StringVar(&opts.logLevel, "log-level", config.EnvDefault("LOG_LEVEL", "error"), "log level")

	switch cmd {
	case "promote":
		flagSet.StringVar(&opts.username, "username", "", "account to promote")
	case "genkey":
		flagSet.StringVar(&opts.as, "as", "", "admin username issuing the key")
		flagSet.IntVar(&opts.days, "days", 30, "grant length in days, 0 for lifetime")
	case "keys", "users":
		flagSet.StringVar(&opts.as, "as", "", "staff username running the listing")
		flagSet.IntVar(&opts.page, "page", 1, "page number")
		flagSet.IntVar(&opts.size, "size", 50, "page size")
	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}

	if err := flagSet.Parse(rest); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if opts.dsn == "" {
		cfg := config.Config{
			DBDriver:    opts.driver,
			SQLitePath:  config.EnvDefault("SQLITE_PATH", "./database.db"),
			DatabaseURL: os.Getenv("DATABASE_URL"),
		}
		opts.dsn = cfg.DSN()
	}

	ctx = logging.IntoContext(ctx, logging.NewWithWriter(os.Stderr, opts.logLevel))

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	gdb, err := db.Open(openCtx, opts.driver, opts.dsn)
	cancel()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(gdb) }()

	store := repo.New(gdb)
	svc := service.New(store, nil, nil)

	switch cmd {
	case "promote":
		return promote(ctx, svc, opts, out)
	case "genkey":
		return genkey(ctx, svc, store, opts, out)
	case "keys":
		return listKeys(ctx, svc, store, opts, out)
	default:
		return listUsers(ctx, svc, store, opts, out)
	}
}

// callerFor acts as the named account, so the service applies the same
// capability checks as over HTTP.
func callerFor(ctx context.Context, store repo.Store, username string) (service.Caller, error) {
	if username == "" {
		return service.Caller{}, errors.New("--as is required")
	}
	acc, err := store.GetAccountByUsername(ctx, username)
	if err != nil {
		return service.Caller{}, fmt.Errorf("account %q: %w", username, err)
	}
	return service.Caller{UID: acc.UID, Username: acc.Username, Role: acc.Role}, nil
}

func promote(ctx context.Context, svc *service.EntitlementService, opts options, out io.Writer) error {
	res, err := svc.BootstrapSuperAdmin(ctx, opts.username)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "promoted %s (uid %d) to super-admin\nsecurity code: %d\n", res.Account.Username, res.Account.UID, *res.SecurityCode)
	return nil
}

func genkey(ctx context.Context, svc *service.EntitlementService, store repo.Store, opts options, out io.Writer) error {
	caller, err := callerFor(ctx, store, opts.as)
	if err != nil {
		return err
	}
	key, err := svc.GenerateKey(ctx, caller, opts.days)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, key.KeyValue)
	return nil
}

func listKeys(ctx context.Context, svc *service.EntitlementService, store repo.Store, opts options, out io.Writer) error {
	caller, err := callerFor(ctx, store, opts.as)
	if err != nil {
		return err
	}
	page, err := svc.ListKeys(ctx, caller, opts.page, opts.size)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tTIER\tDAYS\tUSED\tUSED BY\tCREATED BY\tCREATED")
	for _, k := range page.Items {
		usedBy := "-"
		if k.UsedBy != nil {
			usedBy = fmt.Sprint(*k.UsedBy)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%t\t%s\t%s\t%s\n",
			k.KeyValue, k.SubscriptionTier, k.DurationDays, k.IsUsed, usedBy, k.CreatedBy, k.CreatedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(tw, "\n%d of %d\n", len(page.Items), page.Total)
	return tw.Flush()
}

func listUsers(ctx context.Context, svc *service.EntitlementService, store repo.Store, opts options, out io.Writer) error {
	caller, err := callerFor(ctx, store, opts.as)
	if err != nil {
		return err
	}
	page, err := svc.ListAccounts(ctx, caller, opts.page, opts.size)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UID\tUSERNAME\tEMAIL\tROLE\tTIER\tBANNED")
	for _, a := range page.Items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%t\n", a.UID, a.Username, a.Email, a.Role, a.SubscriptionTier, a.IsBanned)
	}
	fmt.Fprintf(tw, "\n%d of %d\n", len(page.Items), page.Total)
	return tw.Flush()
}
