package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/prophezy/oracle-resolver/internal/app"
	s3blob "github.com/prophezy/oracle-resolver/internal/blob/s3"
	"github.com/prophezy/oracle-resolver/internal/crypto"
	"github.com/prophezy/oracle-resolver/internal/domain"
	"github.com/prophezy/oracle-resolver/internal/service"
	"github.com/prophezy/oracle-resolver/internal/store/postgres"
)

func encryptKeyCmd(c *cli) *cobra.Command {
	var key, password, out string
	cmd := &cobra.Command{
		Use:   "encrypt-key",
		Short: "Encrypt the resolver private key into a password-protected file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if key == "" {
				key = os.Getenv("ORACLE_LEDGER_PRIVATE_KEY")
			}
			if password == "" {
				password = os.Getenv("ORACLE_LEDGER_KEY_PASSWORD")
			}
			if key == "" {
				return errors.New("no private key: pass --key or set ORACLE_LEDGER_PRIVATE_KEY")
			}

			parsed, err := crypto.ParseKey(key)
			if err != nil {
				return err
			}
			blob, err := crypto.EncryptKey(key, password)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, blob, 0o600); err != nil {
				return fmt.Errorf("writing %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s for resolver %s\n", out, parsed.Address)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "hex private key (default $ORACLE_LEDGER_PRIVATE_KEY)")
	cmd.Flags().StringVar(&password, "password", "", "encryption password (default $ORACLE_LEDGER_KEY_PASSWORD)")
	cmd.Flags().StringVarP(&out, "out", "o", "resolver.key.json", "output file")
	return cmd
}

func resolveCmd(c *cli) *cobra.Command {
	var (
		marketID   int64
		oracleType string
		feed       string
		threshold  string
		onChain    bool
		resolvedBy string
	)
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve one market through the normal resolution path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requirePositive("market", marketID); err != nil {
				return err
			}
			return c.withServices(cmd.Context(), "server", func(deps *app.Dependencies, svcs *app.Services) error {
				addr := resolvedBy
				if addr == "" && deps.ResolverKey != nil {
					addr = deps.ResolverKey.Address
				}
				res, err := svcs.Resolution.Resolve(cmd.Context(), service.ResolveRequest{
					MarketID:        marketID,
					Mechanism:       oracleType,
					FeedRef:         feed,
					Threshold:       threshold,
					OnChain:         onChain,
					ResolverAddress: addr,
				})
				if err != nil {
					return err
				}

				table := tablewriter.NewWriter(cmd.OutOrStdout())
				table.Header("Market", "Outcome", "Value", "Threshold", "Mechanism", "Confidence", "On-chain", "Tx")
				table.Append(
					strconv.FormatInt(res.MarketID, 10),
					res.Outcome.String(),
					fmt.Sprintf("%.4f", res.Value),
					fmt.Sprintf("%.4f", res.Threshold),
					string(res.Mechanism),
					fmt.Sprintf("%.2f", res.Confidence),
					strconv.FormatBool(res.OnChain),
					res.TxHash,
				)
				return table.Render()
			})
		},
	}
	cmd.Flags().Int64Var(&marketID, "market", 0, "market id")
	cmd.Flags().StringVar(&oracleType, "oracle-type", "chainlink", "chainlink or uma")
	cmd.Flags().StringVar(&feed, "feed", "", "price feed id, e.g. BTC")
	cmd.Flags().StringVar(&threshold, "threshold", "", "yes threshold for fast-price markets")
	cmd.Flags().BoolVar(&onChain, "on-chain", true, "try the ledger before the off-chain resolver")
	cmd.Flags().StringVar(&resolvedBy, "resolved-by", "", "resolver address recorded with the result (default: key address)")
	return cmd
}

func recentCmd(c *cli) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List the most recent resolutions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := postgres.New(cmd.Context(), app.PostgresClientConfig(c.cfg.Postgres))
			if err != nil {
				return err
			}
			defer client.Close()

			rows, err := postgres.NewResolutionStore(client.Pool()).ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("Market", "Question", "Outcome", "Conf", "Mechanism", "Resolved by", "Resolved at")
			for _, r := range rows {
				table.Append(
					strconv.FormatInt(r.MarketID, 10),
					truncate(r.Question, 48),
					r.Outcome.String(),
					fmt.Sprintf("%.2f", r.Confidence),
					string(r.Mechanism),
					shortAddress(r.ResolvedBy),
					r.ResolvedAt.Format(time.RFC3339),
				)
			}
			return table.Render()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of rows")
	return cmd
}

func leaderboardCmd(c *cli) *cobra.Command {
	var (
		sortBy string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the bettor leaderboard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			by, err := service.ParseLeaderboardSort(sortBy)
			if err != nil {
				return err
			}
			return c.withServices(cmd.Context(), "reconcile", func(_ *app.Dependencies, svcs *app.Services) error {
				rows, err := svcs.Stats.Leaderboard(cmd.Context(), by, limit)
				if err != nil {
					return err
				}

				table := tablewriter.NewWriter(cmd.OutOrStdout())
				table.Header("#", "Address", "Bets", "Volume", "Wins", "Resolved", "Win rate", "Created")
				for _, r := range rows {
					table.Append(
						strconv.Itoa(r.Rank),
						r.Address,
						strconv.Itoa(r.TotalBets),
						fmt.Sprintf("%.4f", r.TotalVolume),
						strconv.Itoa(r.Wins),
						strconv.Itoa(r.ResolvedBets),
						fmt.Sprintf("%.2f%%", r.WinRate),
						strconv.Itoa(r.MarketsCreated),
					)
				}
				return table.Render()
			})
		},
	}
	cmd.Flags().StringVar(&sortBy, "sort", "volume", "volume, bets, wins, winrate or markets")
	cmd.Flags().IntVarP(&limit, "limit", "n", 25, "number of rows")
	return cmd
}

func migrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := postgres.New(cmd.Context(), app.PostgresClientConfig(c.cfg.Postgres))
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.RunMigrations(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func reconcileCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Backfill metadata for ledger markets once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withServices(cmd.Context(), "reconcile", func(deps *app.Dependencies, svcs *app.Services) error {
				if deps.Ledger == nil {
					return errors.New("ledger is unreachable, nothing to reconcile")
				}
				report, err := svcs.Reconciler.Run(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, linked %d, created %d, skipped %d\n",
					report.Scanned, report.Linked, report.Created, report.Skipped)
				return nil
			})
		},
	}
}

func auditCmd(c *cli) *cobra.Command {
	var q domain.AuditQuery
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit trail, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := postgres.New(cmd.Context(), app.PostgresClientConfig(c.cfg.Postgres))
			if err != nil {
				return err
			}
			defer client.Close()

			entries, err := postgres.NewAuditStore(client.Pool()).Trail(cmd.Context(), q)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("ID", "At", "Event", "Detail")
			for _, e := range entries {
				detail, _ := json.Marshal(e.Detail)
				table.Append(
					strconv.FormatInt(e.ID, 10),
					e.CreatedAt.UTC().Format(time.RFC3339),
					e.Event,
					truncate(string(detail), 80),
				)
			}
			return table.Render()
		},
	}
	cmd.Flags().Int64Var(&q.MarketID, "market", 0, "only entries for this market id")
	cmd.Flags().StringVar(&q.EventPrefix, "event", "", "event prefix, e.g. resolution. or archive.")
	cmd.Flags().IntVarP(&q.Limit, "limit", "n", 50, "number of rows")
	return cmd
}

func archivesCmd(c *cli) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "archives",
		Short: "List the monthly archive files in cold storage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bucket, err := s3blob.New(cmd.Context(), app.S3ClientConfig(c.cfg.S3))
			if err != nil {
				return err
			}
			objs, err := s3blob.ListArchives(cmd.Context(), bucket, kind)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("Kind", "Month", "Size", "Uploaded", "Key")
			for _, o := range objs {
				table.Append(
					o.Kind,
					o.Month,
					humanBytes(o.Size),
					o.LastModified.UTC().Format(time.RFC3339),
					o.Path,
				)
			}
			return table.Render()
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "resolutions or challenges (default: both)")
	return cmd
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func shortAddress(a string) string {
	if len(a) < 12 {
		return a
	}
	return a[:6] + "…" + a[len(a)-4:]
}

func configCmd(c *cli) *cobra.Command {
	var validate bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if validate {
				if err := c.cfg.Validate(); err != nil {
					return err
				}
			}
			redacted := c.cfg.Redacted()
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(redacted)
		},
	}
	cmd.Flags().BoolVar(&validate, "validate", false, "fail if the configuration is invalid")
	return cmd
}
