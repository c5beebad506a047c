package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"radix/backend/internal/config"
	"radix/backend/internal/domain"
	"radix/backend/internal/store/sqlstore"
)

// wipeConfirmation must be typed verbatim before the wipe command runs.
const wipeConfirmation = "Kill all data"

const usage = `usage: admin <command> [flags]

commands:
  migrate              apply database migrations
  seed -file F         load pricebook items and accounts from a JSON file
  accounts             list accounts and balances
  items                list the pricebook
  history [-limit N]   list the most recent settled transactions
  wipe                 delete every row (asks for confirmation)
`

func main() {
	_ = godotenv.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) < 1 {
		fmt.Fprint(stdout, usage)
		return errors.New("expected a subcommand")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	switch args[0] {
	case "migrate":
		return withStore(ctx, cfg, false, func(s *sqlstore.Store) error {
			if err := s.Migrate(ctx); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "migrations applied (%s)\n", s.Dialect())
			return nil
		})
	case "seed":
		return runSeed(ctx, cfg, args[1:], stdout)
	case "accounts":
		return withStore(ctx, cfg, true, func(s *sqlstore.Store) error {
			return printAccounts(ctx, s, stdout)
		})
	case "items":
		return withStore(ctx, cfg, true, func(s *sqlstore.Store) error {
			return printItems(ctx, s, stdout)
		})
	case "history":
		return runHistory(ctx, cfg, args[1:], stdout)
	case "wipe":
		return runWipe(ctx, cfg, stdin, stdout)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stdout, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func withStore(ctx context.Context, cfg config.Config, migrate bool, fn func(*sqlstore.Store) error) error {
	dialect, dsn := sqlstore.SQLite, cfg.DBPath
	if cfg.UsesPostgres() {
		dialect, dsn = sqlstore.Postgres, cfg.DatabaseURL
	}

	s, err := sqlstore.Open(ctx, dialect, dsn)
	if err != nil {
		return err
	}
	defer s.Close()

	if migrate && cfg.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			return err
		}
	}
	return fn(s)
}

type seedFile struct {
	Items    []domain.Item    `json:"items"`
	Accounts []domain.Account `json:"accounts"`
}

func runSeed(ctx context.Context, cfg config.Config, args []string, stdout io.Writer) error {
	seedCmd := flag.NewFlagSet("seed", flag.ContinueOnError)
	seedCmd.SetOutput(stdout)
	file := seedCmd.String("file", "", "JSON file with items and accounts (required)")
	if err := seedCmd.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("-file flag is required")
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var seed seedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}
	for _, account := range seed.Accounts {
		if err := account.Validate(); err != nil {
			return err
		}
	}

	return withStore(ctx, cfg, true, func(s *sqlstore.Store) error {
		for _, item := range seed.Items {
			if err := s.UpsertItem(ctx, item); err != nil {
				return err
			}
		}
		for _, account := range seed.Accounts {
			if err := s.UpsertAccount(ctx, account); err != nil {
				return err
			}
		}
		fmt.Fprintf(stdout, "seeded %d items and %d accounts\n", len(seed.Items), len(seed.Accounts))
		return nil
	})
}

func runHistory(ctx context.Context, cfg config.Config, args []string, stdout io.Writer) error {
	historyCmd := flag.NewFlagSet("history", flag.ContinueOnError)
	historyCmd.SetOutput(stdout)
	limit := historyCmd.Int("limit", 20, "number of transactions to show")
	if err := historyCmd.Parse(args); err != nil {
		return err
	}

	return withStore(ctx, cfg, true, func(s *sqlstore.Store) error {
		history, err := s.ListCompletedTransactions(ctx, *limit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SETTLED AT\tTX ID\tMETHOD\tITEMS\tCASH BACK")
		for _, tx := range history {
			var units int64
			for _, qty := range tx.Basket {
				units += qty
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
				tx.SettledAt.Format(time.RFC3339), tx.ID, tx.Method, units, formatMoney(tx.CashBack))
		}
		return tw.Flush()
	})
}

func runWipe(ctx context.Context, cfg config.Config, stdin io.Reader, stdout io.Writer) error {
	fmt.Fprintf(stdout, "This deletes every item, account and transaction. Type %q to continue: ", wipeConfirmation)
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read confirmation: %w", err)
	}
	if strings.TrimRight(line, "\r\n") != wipeConfirmation {
		fmt.Fprintln(stdout, "aborted")
		return nil
	}

	return withStore(ctx, cfg, true, func(s *sqlstore.Store) error {
		if err := s.Wipe(ctx); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "all data deleted")
		return nil
	})
}

func printAccounts(ctx context.Context, s *sqlstore.Store, stdout io.Writer) error {
	accounts, err := s.ListAccounts(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCREDIT\tOVERDRAFT\tDISCOUNT\tBUNK")
	for _, a := range accounts {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%d%%\t%d\n", a.ID, a.Name, formatMoney(a.Credit), a.Overdraft, a.Discount, a.Bunk)
	}
	return tw.Flush()
}

func printItems(ctx context.Context, s *sqlstore.Store, stdout io.Writer) error {
	items, err := s.ListItems(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tGTIN\tPRICE")
	for _, item := range items {
		gtin := "-"
		if item.GTIN != nil {
			gtin = fmt.Sprintf("%d", *item.GTIN)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", item.ID, item.Name, gtin, formatMoney(item.Price))
	}
	return tw.Flush()
}

// formatMoney renders minor units as a two-decimal amount.
func formatMoney(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}
