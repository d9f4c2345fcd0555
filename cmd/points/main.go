package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"bookswap/internal/config"
	"bookswap/internal/database"
	"bookswap/internal/models"
	"bookswap/internal/service"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	ConfigPath string
	DBPath     string
	Format     string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "points",
		Short: "Manage the meeting point catalog",
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if opts.Format != "text" && opts.Format != "json" {
				return fmt.Errorf("invalid format %q: must be text or json", opts.Format)
			}
			return nil
		},
	}

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "configs/config.yaml"
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", defaultConfig, "config file")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "database path, overrides the config")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newImportCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	return cmd
}

func newImportCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "import <points.yaml>",
		Short:        "Create or update meeting points from a YAML file",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			points, err := config.LoadMeetingPoints(args[0])
			if err != nil {
				return err
			}
			return withMeetings(opts, func(ctx context.Context, meetings *service.MeetingService) error {
				n, err := meetings.ImportPoints(ctx, points)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d meeting points\n", n)
				return nil
			})
		},
	}
}

func newListCommand(opts *rootOptions) *cobra.Command {
	var kind string
	var all bool

	cmd := &cobra.Command{
		Use:          "list",
		Short:        "List meeting points",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMeetings(opts, func(ctx context.Context, meetings *service.MeetingService) error {
				points, err := meetings.ListPoints(ctx, kind, !all)
				if err != nil {
					return err
				}
				return printPoints(cmd, opts.Format, points)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "filter by kind (CAMPUS, LIBRARY, BOOK_EXCHANGE, METRO, OTHER)")
	cmd.Flags().BoolVar(&all, "all", false, "include disabled points")
	return cmd
}

func withMeetings(opts *rootOptions, fn func(context.Context, *service.MeetingService) error) error {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("component", "points-cli").Logger()

	path := opts.DBPath
	dbOpts := database.Options{}
	if path == "" {
		cfg, err := config.Load(opts.ConfigPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		path = cfg.Database.Path
		dbOpts.BusyTimeout = cfg.Database.BusyTimeout
	}

	db, err := database.NewDBWithOptions(path, dbOpts, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	meetings := service.NewMeetingService(db, nil, nil, models.MeetingLeadTime, nil, &logger)
	return fn(context.Background(), meetings)
}

func printPoints(cmd *cobra.Command, format string, points []*models.MeetingPoint) error {
	out := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(points)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tNAME\tADDRESS\tENABLED")
	for _, p := range points {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\n", p.ID, p.Kind, p.Name, p.Address, p.Enabled)
	}
	return tw.Flush()
}
