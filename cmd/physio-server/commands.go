package main

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ehr/physio/internal/config"
	"github.com/ehr/physio/internal/domain/evolution"
	"github.com/ehr/physio/internal/platform/auth"
	"github.com/ehr/physio/internal/platform/db"
	"github.com/ehr/physio/internal/platform/source"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run Postgres migrations for the record store",
	}

	withMigrator := func(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator, schema string) error) error {
		schema, _ := cmd.Flags().GetString("schema")
		dir, _ := cmd.Flags().GetString("dir")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		pool, err := openPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		var fsys fs.FS = db.Migrations()
		if dir != "" {
			fsys = os.DirFS(dir)
		}
		return fn(ctx, db.NewMigrator(pool, fsys), schema)
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator, schema string) error {
				fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)
				count, err := m.Up(ctx, schema)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator, schema string) error {
				statuses, err := m.Status(ctx, schema)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Migration status for schema: %s\n", schema)
				fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				for _, s := range statuses {
					status, appliedAt := "pending", ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	}

	for _, c := range []*cobra.Command{upCmd, statusCmd} {
		c.Flags().String("schema", "public", "Target schema for migrations")
		c.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
		cmd.AddCommand(c)
	}
	return cmd
}

// importCmd copies the configured source into a persistent store, e.g. the
// sheet into Postgres so the API can run from the database.
func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load records from the configured source into postgres or sqlite",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, _ := cmd.Flags().GetString("to")
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if target == cfg.DataSource {
				return fmt.Errorf("import target %q is also the data source", target)
			}
			logger := newLogger(cfg, os.Stderr)
			ctx := cmd.Context()

			stack, err := buildSource(ctx, cfg, logger, nil)
			if err != nil {
				return err
			}
			defer stack.Close()

			repo, closeRepo, err := openRepository(ctx, cfg, target)
			if err != nil {
				return err
			}
			defer closeRepo()

			records, err := stack.Records(ctx)
			if err != nil {
				return err
			}
			n, err := repo.Upsert(ctx, records)
			if err != nil {
				return fmt.Errorf("import failed after %d record(s): %w", n, err)
			}
			logger.Info().Int("records", n).Str("from", cfg.DataSource).Str("to", target).Msg("import complete")
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d record(s) into %s.\n", n, target)
			return nil
		},
	}
	cmd.Flags().String("to", config.SourceSQLite, "Target store: postgres or sqlite")
	return cmd
}

// snapshotCmd downloads the sheet export and stores it in the blob store, so
// DATA_SOURCE=blob can serve without reaching Google.
func snapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Copy the sheet CSV export into the blob store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.SheetID == "" {
				return fmt.Errorf("SHEET_ID is required")
			}
			if err := cfg.ValidateBlob(); err != nil {
				return err
			}
			key, _ := cmd.Flags().GetString("key")
			if key == "" {
				key = cfg.BlobKey
			}
			logger := newLogger(cfg, os.Stderr)
			ctx := cmd.Context()

			sheet, err := newSheetSource(cfg, logger)
			if err != nil {
				return err
			}
			body, err := sheet.RawCSV(ctx)
			if err != nil {
				return err
			}
			// Refuse to overwrite a good export with something unparsable.
			_, stats, err := source.ParseTable(bytes.NewReader(body), cfg.DateLayouts)
			if err != nil {
				return err
			}

			store, err := openBlobStore(ctx, cfg)
			if err != nil {
				return err
			}
			if err := store.Put(ctx, key, bytes.NewReader(body), "text/csv"); err != nil {
				return err
			}
			logger.Info().Str("key", key).Int("bytes", len(body)).Int("records", stats.Records).Msg("snapshot stored")
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %d record(s) at %s.\n", stats.Records, key)
			return nil
		},
	}
	cmd.Flags().String("key", "", "Blob key (defaults to BLOB_KEY)")
	return cmd
}

// withService runs fn against a Service over the configured source.
func withService(cmd *cobra.Command, fn func(ctx context.Context, svc *evolution.Service) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stderr)
	taxonomy, err := loadTaxonomy(cfg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	stack, err := buildSource(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer stack.Close()
	return fn(ctx, evolution.NewService(stack, taxonomy, logger))
}

func patientsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patients",
		Short: "List patients, optionally filtered by name or id",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, _ := cmd.Flags().GetString("query")
			format, _ := cmd.Flags().GetString("output")
			return withService(cmd, func(ctx context.Context, svc *evolution.Service) error {
				items, _, err := svc.SearchPatients(ctx, query, 0, 0)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), format, patientsTmpl, items)
			})
		},
	}
	cmd.Flags().StringP("query", "q", "", "Case and accent insensitive filter")
	cmd.Flags().StringP("output", "o", "text", "Output format: text or json")
	return cmd
}

func datesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dates",
		Short: "List the assessment dates of a patient, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			patient, _ := cmd.Flags().GetString("patient")
			format, _ := cmd.Flags().GetString("output")
			return withService(cmd, func(ctx context.Context, svc *evolution.Service) error {
				tl, err := svc.Timeline(ctx, source.NormalizeID(patient))
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), format, datesTmpl, tl)
			})
		},
	}
	cmd.Flags().String("patient", "", "Patient id")
	cmd.Flags().StringP("output", "o", "text", "Output format: text or json")
	cmd.MarkFlagRequired("patient")
	return cmd
}

func compareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare two assessments of a patient",
		Long: "Compare two assessments of a patient. Without --date the most recent\n" +
			"assessment is used; without --compare-to the one before it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			patient, _ := cmd.Flags().GetString("patient")
			format, _ := cmd.Flags().GetString("output")
			recentStr, _ := cmd.Flags().GetString("date")
			baselineStr, _ := cmd.Flags().GetString("compare-to")
			patient = source.NormalizeID(patient)
			recent, baseline, err := parseDates(recentStr, baselineStr)
			if err != nil {
				return err
			}

			return withService(cmd, func(ctx context.Context, svc *evolution.Service) error {
				cmp, err := svc.Compare(ctx, patient, recent, baseline)
				if err != nil {
					return err
				}
				return renderComparison(cmd.OutOrStdout(), format, cmp)
			})
		},
	}
	cmd.Flags().String("patient", "", "Patient id")
	cmd.Flags().String("date", "", "Recent assessment date (YYYY-MM-DD)")
	cmd.Flags().String("compare-to", "", "Baseline assessment date (YYYY-MM-DD)")
	cmd.Flags().StringP("output", "o", "text", "Output format: text or json")
	cmd.MarkFlagRequired("patient")
	return cmd
}

// parseDates parses the optional --date and --compare-to flags. Unset flags
// yield zero times, which the service resolves from the patient's timeline.
func parseDates(recentStr, baselineStr string) (time.Time, time.Time, error) {
	var recent, baseline time.Time
	var err error
	if recentStr != "" {
		if recent, err = evolution.ParseDay(recentStr); err != nil {
			return recent, baseline, fmt.Errorf("invalid --date %q: %w", recentStr, err)
		}
	}
	if baselineStr != "" {
		if baseline, err = evolution.ParseDay(baselineStr); err != nil {
			return recent, baseline, fmt.Errorf("invalid --compare-to %q: %w", baselineStr, err)
		}
	}
	return recent, baseline, nil
}

func taxonomyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taxonomy",
		Short: "Print the attribute taxonomy in use",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("output")
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tax, err := loadTaxonomy(cfg)
			if err != nil {
				return err
			}
			if err := tax.Validate(); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), format, taxonomyTmpl, tax)
		},
	}
	cmd.Flags().StringP("output", "o", "text", "Output format: text or json")
	return cmd
}

// tokenCmd mints a bearer token signed with AUTH_SIGNING_KEY.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token for a clinician",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("sub")
			roles, _ := cmd.Flags().GetStringSlice("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			jwtCfg := auth.JWTConfig{
				Issuer:     cfg.AuthIssuer,
				Audience:   cfg.AuthAudience,
				SigningKey: []byte(cfg.AuthSigningKey),
			}
			token, err := jwtCfg.IssueToken(subject, roles, ttl)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)
			logger.Info().
				Str("sub", subject).
				Str("roles", strings.Join(roles, ",")).
				Dur("ttl", ttl).
				Msg("token issued")
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("sub", "", "Token subject (user id)")
	cmd.Flags().StringSlice("role", []string{auth.RolePhysiotherapist}, "Granted roles")
	cmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	cmd.MarkFlagRequired("sub")
	return cmd
}
