// Package cmd implements the command-line interface for the project
// migration tool.
package cmd

import (
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"gh-projects-migrate/config"
	"gh-projects-migrate/github"
	"gh-projects-migrate/migrate"
	"gh-projects-migrate/repomap"
)

var (
	targetOrg     string
	mappingPath   string
	snapshotDir   string
	workDir       string
	ignoreMapping bool
	useExisting   bool
	projectNumber int

	rootCmd = &cobra.Command{
		Use:   "gh-projects-migrate",
		Short: "Migrate GitHub project boards between organizations",
		Long: `gh-projects-migrate recreates project boards captured from a source
organization in a target organization, re-adding every item and
transplanting text, number, date, single-select and iteration field
values onto the new project's fields.

The run is resumable: each project's copy output and target field list
are persisted under <work-dir>/import, and a re-run with
--use-existing skips the steps those artifacts mark as done.

Authentication uses the GITHUB_TOKEN environment variable (a .env
file is honored).`,
		SilenceUsage: true,
		RunE:         run,
	}
)

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVar(&targetOrg, "target-org", "", "organization to migrate projects into (required)")
	rootCmd.Flags().StringVar(&mappingPath, "mapping", "", "repository mapping file (source,target per line)")
	rootCmd.Flags().StringVar(&snapshotDir, "snapshot-dir", "export", "directory holding the exported source snapshot")
	rootCmd.Flags().StringVar(&workDir, "work-dir", ".", "working directory for artifacts and the journal")
	rootCmd.Flags().BoolVar(&ignoreMapping, "ignore-mapping", false, "keep source repository names instead of mapping them")
	rootCmd.Flags().BoolVar(&useExisting, "use-existing", false, "reuse persisted per-project artifacts from a prior run")
	rootCmd.Flags().IntVar(&projectNumber, "project", 0, "migrate only this source project number")
	_ = rootCmd.MarkFlagRequired("target-org")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.Config{
		TargetOrg:     targetOrg,
		MappingPath:   mappingPath,
		SnapshotDir:   snapshotDir,
		WorkDir:       workDir,
		IgnoreMapping: ignoreMapping,
		UseExisting:   useExisting,
		ProjectNumber: projectNumber,
	})
	if err != nil {
		return err
	}

	repos := repomap.Ignored()
	if !cfg.IgnoreMapping {
		repos, err = repomap.Load(cfg.MappingPath)
		if err != nil {
			return err
		}
	}

	store, err := migrate.NewStore(cfg.WorkDir)
	if err != nil {
		return err
	}
	journal, err := migrate.OpenJournal(filepath.Join(cfg.WorkDir, "migration.db"))
	if err != nil {
		return err
	}
	defer journal.Close()

	client := github.NewClient(cfg.Token)
	if cfg.Endpoint != "" {
		client = client.WithEndpoint(cfg.Endpoint)
	}

	m := migrate.NewMigrator(cfg, client, store, journal, repos)
	results, err := m.Run(cmd.Context())
	if err != nil {
		return err
	}
	for _, res := range results {
		if res.Err != nil {
			log.Printf("Project %d was not fully migrated; re-run with --use-existing to continue.", res.SourceNumber)
		}
	}
	return nil
}
