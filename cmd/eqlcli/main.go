// Command eqlcli is the command-line front end for the embedded query
// engine: one cobra command per external operation spec.md §6 names that
// makes sense as a one-shot CLI invocation (open implicitly via the --db
// flag; destroy, query, create-index, drop-index as subcommands).
package main

import (
	"context"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/kvquery/eql"
	"github.com/kvquery/eql/internal/applog"
	"github.com/kvquery/eql/internal/eqlconfig"
	"github.com/kvquery/eql/internal/value"
)

var (
	dbPath   string
	readOnly bool
	debug    bool
	cfgFile  string
)

func main() {
	root := &cobra.Command{
		Use:   "eqlcli",
		Short: "command-line client for an embedded query-language database",
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "", "database directory")
	root.PersistentFlags().BoolVar(&readOnly, "read-only", false, "open the database read-only")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "verbose development logging")
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (flags override)")

	root.AddCommand(destroyCmd(), queryCmd(), createIndexCmd(), dropIndexCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "eqlcli:", err)
		os.Exit(1)
	}
}

func loadConfig() (eqlconfig.Config, error) {
	opts := []eqlconfig.Option{
		eqlconfig.WithDBPath(dbPath),
		eqlconfig.WithReadOnly(readOnly),
		eqlconfig.WithDebug(debug),
	}
	if cfgFile == "" {
		return eqlconfig.New(opts...), nil
	}
	return eqlconfig.Load(cfgFile, opts...)
}

func openDB() (*eql.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("--db is required")
	}
	applog.SetGlobal(applog.New("eqlcli", cfg.Debug))
	return eql.Open(cfg.DBPath,
		eqlconfig.WithReadOnly(cfg.ReadOnly),
		eqlconfig.WithBackfillFlushEvery(cfg.BackfillFlushEvery),
		eqlconfig.WithReadBufferSize(cfg.ReadBufferSize),
		eqlconfig.WithDebug(cfg.Debug),
	)
}

func destroyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "destroy",
		Short: "remove all persistent state for --db",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				return fmt.Errorf("--db is required")
			}
			return eql.Destroy(dbPath)
		},
	}
}

func queryCmd() *cobra.Command {
	var text string
	c := &cobra.Command{
		Use:   "query",
		Short: "run a textual query and print one JSON record per line",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := context.Background()
			it, err := db.ExecuteScript(ctx, text)
			if err != nil {
				return err
			}
			defer it.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			for it.Next() {
				r := it.Record()
				if err := enc.Encode(map[string]any{"key": r.Key, "value": r.Value}); err != nil {
					return err
				}
			}
			return it.Err()
		},
	}
	c.Flags().StringVar(&text, "text", "", "query text")
	c.MarkFlagRequired("text")
	return c
}

func createIndexCmd() *cobra.Command {
	var recordType, name string
	var paths []string
	c := &cobra.Command{
		Use:   "create-index",
		Short: "create and back-fill a named index on a record type",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			vp := make([]value.Path, len(paths))
			for i, p := range paths {
				vp[i] = value.ParsePath(p)
			}
			return db.CreateIndex(context.Background(), recordType, name, vp)
		},
	}
	c.Flags().StringVar(&recordType, "type", "", "record type")
	c.Flags().StringVar(&name, "name", "", "index name")
	c.Flags().StringSliceVar(&paths, "path", nil, "extraction path (repeatable)")
	c.MarkFlagRequired("type")
	c.MarkFlagRequired("name")
	return c
}

func dropIndexCmd() *cobra.Command {
	var recordType, name string
	c := &cobra.Command{
		Use:   "drop-index",
		Short: "drop a named index from a record type",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			return db.DropIndex(context.Background(), recordType, name)
		},
	}
	c.Flags().StringVar(&recordType, "type", "", "record type")
	c.Flags().StringVar(&name, "name", "", "index name")
	c.MarkFlagRequired("type")
	c.MarkFlagRequired("name")
	return c
}
