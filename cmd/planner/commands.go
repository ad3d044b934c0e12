package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/AniruddhAgrahari/smartstock/internal/cache"
	"github.com/AniruddhAgrahari/smartstock/internal/config"
	"github.com/AniruddhAgrahari/smartstock/internal/domain"
	"github.com/AniruddhAgrahari/smartstock/internal/drive"
	"github.com/AniruddhAgrahari/smartstock/internal/engine"
	"github.com/AniruddhAgrahari/smartstock/internal/history"
	"github.com/AniruddhAgrahari/smartstock/internal/repository/postgres"
	"github.com/AniruddhAgrahari/smartstock/internal/service"
	"github.com/AniruddhAgrahari/smartstock/pkg/logger"
)

var errNoHistory = errors.New("one of --history, --drive-file-id or --db-url is required")

// newService builds the planning service from the environment config, backed
// by the database when one is open.
func newService(c *cli.Context) (*service.PlanningService, error) {
	cfg := config.Load()
	settings, err := cfg.Engine.Settings()
	if err != nil {
		return nil, err
	}
	forecasts, err := cache.NewForecastCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(settings, engine.WithForecastCache(forecasts))
	if err != nil {
		return nil, err
	}

	var opts []service.Option
	if db := dbFrom(c); db != nil {
		opts = append(opts,
			service.WithHistory(postgres.NewHistoryRepository(db)),
			service.WithItems(postgres.NewItemRepository(db)),
			service.WithRuns(postgres.NewPlanRunRepository(db)),
		)
	}
	return service.NewPlanningService(eng, opts...), nil
}

// loadRecords reads history from a file or Drive. ok is false when neither
// is given, leaving the database as the source.
func loadRecords(c *cli.Context) (records []domain.DemandRecord, ok bool, err error) {
	switch {
	case c.String("drive-file-id") != "":
		ds, err := drive.NewServiceFromFile(c.Context, c.String("drive-credentials"))
		if err != nil {
			return nil, false, err
		}
		importer := drive.NewImporter(drive.NewDownloader(ds, c.String("drive-download-dir")), nil)
		records, err = importer.Fetch(c.Context, c.String("drive-file-id"))
		return records, true, err
	case c.String("history") != "":
		records, err = history.LoadRecordsFile(c.String("history"))
		return records, true, err
	}
	return nil, false, nil
}

// resolveRecords is loadRecords falling back to the database.
func resolveRecords(c *cli.Context) ([]domain.DemandRecord, error) {
	records, ok, err := loadRecords(c)
	if err != nil || ok {
		return records, err
	}
	db := dbFrom(c)
	if db == nil {
		return nil, errNoHistory
	}
	return postgres.NewHistoryRepository(db).ListDemand(c.Context, domain.HistoryFilter{SKUs: c.StringSlice("sku")})
}

func runPlan(c *cli.Context) error {
	svc, err := newService(c)
	if err != nil {
		return err
	}

	var spec domain.ConstraintSpec
	if path := c.String("constraints"); path != "" {
		if spec, err = history.LoadConstraintsFile(path); err != nil {
			return err
		}
	}

	records, ok, err := loadRecords(c)
	if err != nil {
		return err
	}

	var run *domain.PlanRun
	if !ok {
		if dbFrom(c) == nil {
			return errNoHistory
		}
		run, err = svc.RunFromDB(c.Context, service.RunRequest{
			SKUs:            c.StringSlice("sku"),
			Horizon:         c.Int("horizon"),
			Constraints:     spec.Constraints(),
			SolverTimeLimit: c.Duration("time-limit"),
		})
	} else {
		var items []domain.Item
		if path := c.String("items"); path != "" {
			if items, err = history.LoadItemsFile(path); err != nil {
				return err
			}
		}
		run, err = svc.Plan(c.Context, domain.PlanRequest{
			Records:         records,
			Items:           items,
			Horizon:         c.Int("horizon"),
			Constraints:     spec.Constraints(),
			SolverTimeLimit: c.Duration("time-limit"),
		})
	}
	if err != nil {
		return err
	}

	for _, w := range run.Result.Warnings {
		logger.Log.Warn().Str("run_id", run.ID).Msg(w)
	}
	return writeJSON(c, run.Result)
}

func runForecast(c *cli.Context) error {
	svc, err := newService(c)
	if err != nil {
		return err
	}
	records, err := resolveRecords(c)
	if err != nil {
		return err
	}
	res, err := svc.Forecast(c.Context, records, c.Int("horizon"))
	if err != nil {
		return err
	}
	return writeJSON(c, res)
}

func runEvaluate(c *cli.Context) error {
	svc, err := newService(c)
	if err != nil {
		return err
	}
	records, err := resolveRecords(c)
	if err != nil {
		return err
	}
	report, err := svc.Evaluate(c.Context, records)
	if err != nil {
		return err
	}
	return writeJSON(c, report)
}

func runModels(c *cli.Context) error {
	svc, err := newService(c)
	if err != nil {
		return err
	}
	return writeJSON(c, svc.Models())
}

func runTransfers(c *cli.Context) error {
	svc, err := newService(c)
	if err != nil {
		return err
	}
	locations, err := history.LoadStockLocationsFile(c.String("locations"))
	if err != nil {
		return err
	}
	transfers, err := svc.Transfers(c.Context, locations, nil)
	if err != nil {
		return err
	}
	if transfers == nil {
		transfers = []domain.TransferRecommendation{}
	}
	return writeJSON(c, transfers)
}

func runImport(c *cli.Context) error {
	svc, err := newService(c)
	if err != nil {
		return err
	}

	var (
		records   []domain.DemandRecord
		items     []domain.Item
		locations []domain.StockLocation
	)
	if path := c.String("history"); path != "" {
		if records, err = history.LoadRecordsFile(path); err != nil {
			return err
		}
	}
	if path := c.String("items"); path != "" {
		if items, err = history.LoadItemsFile(path); err != nil {
			return err
		}
	}
	if path := c.String("locations"); path != "" {
		if locations, err = history.LoadStockLocationsFile(path); err != nil {
			return err
		}
	}
	if len(records)+len(items)+len(locations) == 0 {
		return fmt.Errorf("nothing to import: pass --history, --items or --locations")
	}

	n, err := svc.Import(c.Context, records, items, locations)
	if err != nil {
		return err
	}
	logger.Log.Info().
		Int("records", n).
		Int("items", len(items)).
		Int("locations", len(locations)).
		Msg("import finished")
	return nil
}

func runCacheFlush(c *cli.Context) error {
	svc, err := newService(c)
	if err != nil {
		return err
	}
	if err := svc.InvalidateForecasts(c.Context); err != nil {
		return err
	}
	return writeJSON(c, map[string]string{"status": "invalidated"})
}
