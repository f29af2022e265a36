package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/CTAG07/Pronostico/pkg/dataset"
	"github.com/CTAG07/Pronostico/pkg/markov"
	"github.com/CTAG07/Pronostico/pkg/store"
	"github.com/dustin/go-humanize"
)

// errUsage marks a bad invocation; the flag set has already printed why.
var errUsage = errors.New("usage error")

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func (a *app) parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return errUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(a.stderr, "unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
		return errUsage
	}
	return nil
}

// logFlags registers the flags selecting where a log comes from: a data
// source URI or a model stored in the database.
type logFlags struct {
	data   *string
	model  *string
	shards *int
}

func (a *app) addLogFlags(fs *flag.FlagSet) logFlags {
	return logFlags{
		data:   fs.String("data", a.config.Data.Source, "log to read: a path, file:// or s3://bucket/key URI"),
		model:  fs.String("model", "", "read the log of this stored model instead of -data"),
		shards: fs.Int("shards", 1, "count transitions in this many concurrent shards"),
	}
}

// loadObservations reads the log selected by lf.
func (a *app) loadObservations(ctx context.Context, lf logFlags) ([]markov.Observation, error) {
	var src dataset.Source
	if *lf.model != "" {
		st, closeStore, err := a.openStore()
		if err != nil {
			return nil, err
		}
		defer closeStore()
		model, err := st.GetModelInfo(ctx, *lf.model)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", *lf.model, err)
		}
		src = st.Source(model)
	} else {
		loc, err := dataset.Open(ctx, *lf.data, a.config.sourceOptions())
		if err != nil {
			return nil, err
		}
		src = loc
	}

	obs, err := src.Load(ctx)
	if errors.Is(err, dataset.ErrSourceNotFound) {
		return nil, fmt.Errorf("%s no encontrado: %w", *lf.data, dataset.ErrSourceNotFound)
	}
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Observations loaded", "source", src, "count", len(obs))
	return obs, nil
}

func (a *app) estimate(ctx context.Context, lf logFlags) (*markov.StateSpace, *markov.TransitionMatrix, error) {
	obs, err := a.loadObservations(ctx, lf)
	if err != nil {
		return nil, nil, err
	}
	if *lf.shards > 1 {
		space, m := markov.EstimateConcurrent(obs, *lf.shards)
		return space, m, nil
	}
	space, m := markov.Estimate(obs)
	return space, m, nil
}

// openStore opens the configured database. The returned func closes both the
// store and the database.
func (a *app) openStore() (*store.Store, func(), error) {
	st, db, err := openStore(a.config.Server)
	if err != nil {
		return nil, nil, err
	}
	st.SetLogger(a.logger)
	return st, func() {
		st.Close()
		if err := db.Close(); err != nil {
			a.logger.Error("Failed to close database", "error", err)
		}
	}, nil
}

func (a *app) cmdGenerate(ctx context.Context, args []string) error {
	fs := a.flagSet("generate")
	days := fs.Int("days", a.config.Data.Days, "number of days to generate")
	seed := fs.Uint64("seed", a.config.Data.Seed, "random seed; 0 seeds from the clock")
	out := fs.String("out", a.config.Data.Source, "destination: a path, file:// or s3://bucket/key URI")
	if err := a.parse(fs, args); err != nil {
		return err
	}

	obs, err := markov.GenerateObservations(newRand(*seed), *days, a.config.Data.Weights)
	if err != nil {
		return err
	}
	loc, err := dataset.Open(ctx, *out, a.config.sourceOptions())
	if err != nil {
		return err
	}
	if err = loc.Save(ctx, obs); err != nil {
		return err
	}
	a.logger.Info("Log generated", "destination", *out, "days", len(obs))
	fmt.Fprintf(a.stdout, "✅  %s generado con %s días.\n", *out, humanize.Comma(int64(len(obs))))
	return nil
}

func (a *app) cmdEstimate(ctx context.Context, args []string) error {
	fs := a.flagSet("estimate")
	lf := a.addLogFlags(fs)
	if err := a.parse(fs, args); err != nil {
		return err
	}
	space, m, err := a.estimate(ctx, lf)
	if err != nil {
		return err
	}
	return PrintMatrix(a.stdout, space, m)
}

func (a *app) cmdQuery(ctx context.Context, args []string) error {
	fs := a.flagSet("query")
	lf := a.addLogFlags(fs)
	if err := a.parse(fs, args); err != nil {
		return err
	}
	space, m, err := a.estimate(ctx, lf)
	if err != nil {
		return err
	}
	if err = PrintMatrix(a.stdout, space, m); err != nil {
		return err
	}
	return NewConsole(a.stdin, a.stdout, space, m).Run()
}

func (a *app) cmdTrain(ctx context.Context, args []string) error {
	fs := a.flagSet("train")
	name := fs.String("model", "", "model to store the log under (created if missing)")
	data := fs.String("data", a.config.Data.Source, "log to read: a path, file:// or s3://bucket/key URI")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	if *name == "" {
		fmt.Fprintln(a.stderr, "train: -model is required")
		return errUsage
	}

	loc, err := dataset.Open(ctx, *data, a.config.sourceOptions())
	if err != nil {
		return err
	}
	obs, err := loc.Load(ctx)
	if errors.Is(err, dataset.ErrSourceNotFound) {
		return fmt.Errorf("%s no encontrado: %w", *data, dataset.ErrSourceNotFound)
	}
	if err != nil {
		return err
	}

	st, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	model, err := st.EnsureModel(ctx, *name)
	if err != nil {
		return err
	}
	if err = st.AddObservations(ctx, model, obs); err != nil {
		return err
	}
	stats, err := st.GetModelStats(ctx, model)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "✅  %s: %s observaciones añadidas, %s en total (días %d a %d).\n",
		model.Name, humanize.Comma(int64(len(obs))), humanize.Comma(int64(stats.Observations)),
		stats.FirstDay, stats.LastDay)
	return nil
}

func (a *app) cmdStats(ctx context.Context, args []string) error {
	fs := a.flagSet("stats")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	st, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	stats, err := st.GetStats(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Modelos: %s\nObservaciones: %s\n\n",
		humanize.Comma(int64(len(stats.Models))), humanize.Comma(int64(stats.TotalObservations)))
	if len(stats.Models) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODELO\tOBSERVACIONES\tDÍAS\tESTADOS\tTRANSICIONES")
	for _, model := range stats.Models {
		ms := stats.Stats[model.Id]
		fmt.Fprintf(tw, "%s\t%s\t%d-%d\t%d\t%s\n", model.Name,
			humanize.Comma(int64(ms.Observations)), ms.FirstDay, ms.LastDay, ms.States,
			humanize.Comma(int64(ms.Transitions)))
	}
	return tw.Flush()
}

func (a *app) cmdSimulate(ctx context.Context, args []string) error {
	fs := a.flagSet("simulate")
	lf := a.addLogFlags(fs)
	start := fs.String("start", "", "state of the first day")
	steps := fs.Int("steps", 7, "number of days to simulate")
	seed := fs.Uint64("seed", a.config.Data.Seed, "random seed; 0 seeds from the clock")
	temperature := fs.Float64("temperature", 1.0, "sampling temperature; 0 always picks the most likely state")
	topK := fs.Int("top-k", 0, "only consider the k most likely next states; 0 considers all")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	if *start == "" {
		fmt.Fprintln(a.stderr, "simulate: -start is required")
		return errUsage
	}
	if *steps < 0 || *steps > markov.MaxSteps {
		fmt.Fprintf(a.stderr, "simulate: -steps must be between 0 and %d\n", markov.MaxSteps)
		return errUsage
	}

	space, m, err := a.estimate(ctx, lf)
	if err != nil {
		return err
	}
	path, err := markov.Simulate(newRand(*seed), space, m,
		*start, markov.WithSteps(*steps), markov.WithTemperature(*temperature), markov.WithTopK(*topK))
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Día 0: %s\n", displayState(*start))
	for i, state := range path {
		fmt.Fprintf(a.stdout, "Día %d: %s\n", i+1, displayState(state))
	}
	if len(path) < *steps {
		last := *start
		if len(path) > 0 {
			last = path[len(path)-1]
		}
		fmt.Fprintf(a.stdout, "(sin transiciones conocidas desde %s)\n", last)
	}
	return nil
}

func (a *app) cmdServe(ctx context.Context, args []string) error {
	fs := a.flagSet("serve")
	addr := fs.String("addr", a.config.Server.ApiAddr, "address to listen on")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	a.config.Server.ApiAddr = *addr

	st, db, err := openStore(a.config.Server)
	if err != nil {
		return err
	}
	st.SetLogger(a.logger)
	defer func() {
		st.Close()
		a.logger.Info("Closing database connection.")
		if err := db.Close(); err != nil {
			a.logger.Error("Failed to close database", "error", err)
		}
	}()

	server := NewServer(a.config, a.logger, db, st)
	if err = server.Run(ctx); err != nil {
		return err
	}
	a.logger.Info("Pronostico has shut down.")
	return nil
}

func (a *app) cmdVersion(_ context.Context, args []string) error {
	if err := a.parse(a.flagSet("version"), args); err != nil {
		return err
	}
	v := currentVersion()
	fmt.Fprintf(a.stdout, "pronostico %s (commit %s, built %s, %s)\n", v.Version, v.Commit, v.BuildDate, v.GoVersion)
	return nil
}
