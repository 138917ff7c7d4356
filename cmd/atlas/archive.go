package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"atlas-overwatch/db"
	"atlas-overwatch/pkg/config"
)

func archiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect the local archive cache",
	}
	cmd.AddCommand(archiveListCmd())
	cmd.AddCommand(archiveLogsCmd())
	return cmd
}

func openArchive(cmd *cobra.Command) (*db.Service, *db.Archive, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	svc, err := db.New(cfg.DatabaseConfig())
	if err != nil {
		return nil, nil, err
	}
	return svc, db.NewArchive(svc), nil
}

func archiveListCmd() *cobra.Command {
	var missions bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached archived features, or cached missions with --missions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArchiveList(cmd, missions)
		},
	}
	cmd.Flags().BoolVar(&missions, "missions", false, "List cached mission subscriptions")
	return cmd
}

func runArchiveList(cmd *cobra.Command, missions bool) error {
	ctx := context.Background()

	svc, archive, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	if missions {
		records, err := archive.ListSubscriptions(ctx)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(os.Stdout, "No missions cached.")
			return nil
		}
		for _, rec := range records {
			fmt.Fprintf(os.Stdout, "%s %s [%s] subscribed=%t\n", rec.GUID, rec.Name, rec.Role.Type, rec.Subscribed)
		}
		return nil
	}

	features, err := archive.ListFeatures(ctx)
	if err != nil {
		return err
	}
	if len(features) == 0 {
		fmt.Fprintln(os.Stdout, "No features cached.")
		return nil
	}
	for _, f := range features {
		geom := ""
		if f.Geometry != nil {
			geom = f.Geometry.Type
		}
		fmt.Fprintf(os.Stdout, "%s %s (%s) [%s] %s\n", f.ID, f.Properties.Callsign, f.Properties.Type, geom, f.Path)
	}
	return nil
}

func archiveLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs <guid>",
		Short: "Print the cached log of a mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			svc, archive, err := openArchive(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			logs, err := archive.ListMissionLogs(ctx, args[0])
			if err != nil {
				return err
			}
			if len(logs) == 0 {
				fmt.Fprintln(os.Stdout, "No log entries cached.")
				return nil
			}
			for _, entry := range logs {
				fmt.Fprintf(os.Stdout, "%s %s: %s\n", entry.Created, entry.CreatorUID, entry.Content)
			}
			return nil
		},
	}
}
