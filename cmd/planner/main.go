package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/AniruddhAgrahari/smartstock/internal/repository/postgres"
	"github.com/AniruddhAgrahari/smartstock/pkg/logger"
)

type ctxKey string

const dbKey ctxKey = "db"

func newDBURLFlag(required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "db-url",
		Usage:    "Database connection string",
		Required: required,
		EnvVars:  []string{"DATABASE_URL"},
	}
}

func historyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "history",
			Usage:   "Demand history file (.csv or .xlsx with sku,timestamp,quantity)",
			EnvVars: []string{"HISTORY_FILE"},
		},
		&cli.StringFlag{
			Name:  "drive-file-id",
			Usage: "Google Drive file ID of a demand history export",
		},
		&cli.StringFlag{
			Name:    "drive-credentials",
			Usage:   "Service account key used for --drive-file-id",
			EnvVars: []string{"GOOGLE_APPLICATION_CREDENTIALS"},
		},
		&cli.StringFlag{
			Name:    "drive-download-dir",
			Usage:   "Directory Drive exports are downloaded to",
			Value:   "./data/drive",
			EnvVars: []string{"DRIVE_DOWNLOAD_DIR"},
		},
		&cli.StringSliceFlag{
			Name:  "sku",
			Usage: "Restrict database history to these SKUs",
		},
		newDBURLFlag(false),
	}
}

func outFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "out",
		Aliases: []string{"o"},
		Usage:   "Write JSON output to this file instead of stdout",
	}
}

func horizonFlag() *cli.IntFlag {
	return &cli.IntFlag{
		Name:  "horizon",
		Usage: "Forecast horizon in periods",
		Value: 14,
	}
}

// initDB opens --db-url through the pgx stdlib driver when it is set.
func initDB(c *cli.Context) error {
	url := c.String("db-url")
	if url == "" {
		return nil
	}

	conn, err := sqlx.Open("pgx", url)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := conn.PingContext(c.Context); err != nil {
		conn.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	c.Context = context.WithValue(c.Context, dbKey, postgres.Wrap(conn))
	return nil
}

func closeDB(c *cli.Context) error {
	if db := dbFrom(c); db != nil {
		return db.Close()
	}
	return nil
}

func dbFrom(c *cli.Context) *postgres.DB {
	db, _ := c.Context.Value(dbKey).(*postgres.DB)
	return db
}

func writeJSON(c *cli.Context, v interface{}) error {
	var w io.Writer = c.App.Writer
	if path := c.String("out"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "planner",
		Usage: "Forecast demand and plan replenishment orders",
		Commands: []*cli.Command{
			{
				Name:  "plan",
				Usage: "Forecast every SKU and optimize a reorder plan",
				Flags: append(historyFlags(),
					horizonFlag(),
					outFlag(),
					&cli.StringFlag{
						Name:  "items",
						Usage: "Item economics CSV (sku,unit_cost,...)",
					},
					&cli.StringFlag{
						Name:  "constraints",
						Usage: "Constraint spec file (YAML or JSON)",
					},
					&cli.DurationFlag{
						Name:  "time-limit",
						Usage: "Solver time limit, overriding ENGINE_SOLVER_TIME_LIMIT",
					},
				),
				Before: initDB,
				After:  closeDB,
				Action: runPlan,
			},
			{
				Name:   "forecast",
				Usage:  "Forecast demand without planning",
				Flags:  append(historyFlags(), horizonFlag(), outFlag()),
				Before: initDB,
				After:  closeDB,
				Action: runForecast,
			},
			{
				Name:   "evaluate",
				Usage:  "Score every candidate model on the held-out window",
				Flags:  append(historyFlags(), outFlag()),
				Before: initDB,
				After:  closeDB,
				Action: runEvaluate,
			},
			{
				Name:   "models",
				Usage:  "List forecast model variants",
				Flags:  []cli.Flag{outFlag()},
				Action: runModels,
			},
			{
				Name:  "transfers",
				Usage: "Recommend stock transfers between locations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "locations",
						Usage:    "Stock locations CSV (sku,location,on_hand,daily_demand)",
						Required: true,
					},
					outFlag(),
				},
				Action: runTransfers,
			},
			{
				Name:  "import",
				Usage: "Store history, items and stock locations in the database",
				Flags: []cli.Flag{
					newDBURLFlag(true),
					&cli.StringFlag{Name: "history", Usage: "Demand history file (.csv or .xlsx)"},
					&cli.StringFlag{Name: "items", Usage: "Item economics CSV"},
					&cli.StringFlag{Name: "locations", Usage: "Stock locations CSV"},
				},
				Before: initDB,
				After:  closeDB,
				Action: runImport,
			},
			{
				Name:  "cache",
				Usage: "Manage the shared forecast cache",
				Subcommands: []*cli.Command{
					{
						Name:   "flush",
						Usage:  "Drop every cached forecast",
						Flags:  []cli.Flag{outFlag()},
						Action: runCacheFlush,
					},
				},
			},
			{
				Name:   "migrate",
				Usage:  "Create the planning tables",
				Flags:  []cli.Flag{newDBURLFlag(true)},
				Before: initDB,
				After:  closeDB,
				Action: func(c *cli.Context) error {
					if err := dbFrom(c).Migrate(c.Context); err != nil {
						return err
					}
					logger.Log.Info().Msg("database schema is up to date")
					return nil
				},
			},
		},
	}
}

func main() {
	_ = godotenv.Load(".env")

	if err := newApp().Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("planner failed")
	}
}
