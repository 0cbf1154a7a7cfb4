package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"modelcat/internal/cache"
	"modelcat/internal/catalog"
	"modelcat/internal/config"
	"modelcat/internal/downloads"
	"modelcat/internal/hub"
	"modelcat/internal/lockfile"
	"modelcat/internal/logging"
	"modelcat/internal/metrics"
	"modelcat/internal/scanner"
	"modelcat/internal/search"
	"modelcat/internal/seed"
	"modelcat/internal/state"
	"modelcat/internal/tui"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		usage()
		return errors.New("no command provided")
	}
	switch args[0] {
	case "search":
		return handleSearch(ctx, args[1:], false)
	case "trending":
		return handleSearch(ctx, args[1:], true)
	case "download":
		return handleDownload(ctx, args[1:])
	case "jobs":
		return handleJobs(ctx, args[1:])
	case "local":
		return handleLocal(ctx, args[1:])
	case "tui":
		return handleTUI(ctx, args[1:])
	case "version":
		fmt.Println(version)
		return nil
	case "help", "-h", "--help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func usage() {
	fmt.Println(`modelcat - model catalog search and download

Usage:
  modelcat search [flags] <query>     search the model hub
  modelcat trending [flags]           show the trending/default view
  modelcat download [flags] <url>     download a model file
  modelcat jobs [flags]               list download history
  modelcat local [flags]              list model files in the models folder
  modelcat tui [flags]                interactive browser
  modelcat version

Flags (all commands):
  -config <path>   YAML config file (optional)
  -log-level <lv>  debug|info|warn|error
  -json            JSON log output`)
}

// app bundles everything the subcommands share.
type app struct {
	cfg     *config.Config
	log     *logging.Logger
	db      *state.DB
	lock    *lockfile.Lock
	cache   *cache.Store
	client  *hub.Client
	met     *metrics.Manager
	service *search.Service
}

func setup(ctx context.Context, fs *flag.FlagSet) (*app, error) {
	cfgPath := fs.Lookup("config").Value.String()
	level := fs.Lookup("log-level").Value.String()
	jsonOut := fs.Lookup("json").Value.String() == "true"

	var cfg *config.Config
	var err error
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
	} else {
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}
	if level == "" {
		level = cfg.Logging.Level
	}
	log := logging.New(level, jsonOut || strings.EqualFold(cfg.Logging.Format, "json"))

	var db *state.DB
	var lock *lockfile.Lock
	var kv cache.KV
	if cfg.General.DataRoot != "" {
		lock, err = lockfile.Acquire(filepath.Join(cfg.General.DataRoot, "modelcat.lock"))
		if err != nil {
			return nil, err
		}
		db, err = state.Open(cfg.General.DataRoot)
		if err != nil {
			lock.Release()
			return nil, err
		}
		kv = db
	}
	met := metrics.New(cfg)
	store := cache.NewStore(kv, cache.Limits{
		MaxQueries:       cfg.Cache.MaxQueries,
		MaxPagesPerQuery: cfg.Cache.MaxPagesPerQuery,
		MaxItemsPerPage:  cfg.Cache.MaxItemsPerPage,
	}, log.With("cache"))
	client := hub.NewClient(cfg, log)
	svc := search.New(ctx, cfg, client, client, store, met, seed.Items(), log)
	return &app{cfg: cfg, log: log, db: db, lock: lock, cache: store, client: client, met: met, service: svc}, nil
}

func commonFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.String("config", "", "config file path")
	fs.String("log-level", "", "log level override")
	fs.Bool("json", false, "JSON log output")
	return fs
}

func (a *app) close() {
	a.service.Close()
	if a.db != nil {
		_ = a.db.Close()
	}
	_ = a.lock.Release()
	_ = a.met.Write()
}

func handleSearch(ctx context.Context, args []string, trending bool) error {
	fs := commonFlags("search")
	page := fs.Int("page", 1, "result page (1-based)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	query := ""
	if !trending {
		query = strings.Join(fs.Args(), " ")
	}
	a, err := setup(ctx, fs)
	if err != nil {
		return err
	}
	defer a.close()

	ch, cancel := a.service.Results().Subscribe()
	defer cancel()
	if *page > 1 {
		a.service.SearchNow(query)
		if err := waitSettled(ctx, ch); err != nil {
			return err
		}
		a.service.LoadPage(*page)
	} else {
		a.service.SearchNow(query)
	}
	if err := waitSettled(ctx, ch); err != nil {
		return err
	}
	printSnapshot(a.service.Results().Get())
	return nil
}

func waitSettled(ctx context.Context, ch <-chan search.Snapshot) error {
	timeout := time.After(2 * time.Minute)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return errors.New("search timed out")
		case s := <-ch:
			if s.Phase == search.PhaseSettled {
				return nil
			}
		}
	}
}

func printSnapshot(s search.Snapshot) {
	if s.Unavailable {
		fmt.Println("search unavailable (no live, cached, or bundled results)")
		return
	}
	if s.NoMorePages {
		fmt.Println("no more pages")
		return
	}
	if s.Notice != "" {
		fmt.Printf("note: %s\n", s.Notice)
	}
	fmt.Printf("%-44s %-10s %12s %8s  %s\n", "REPO", "PARAMS", "DOWNLOADS", "LIKES", "ORIGIN")
	for _, it := range s.Items {
		params := "?"
		if it.ParameterCount != nil {
			params = humanize.SI(float64(*it.ParameterCount), "")
		}
		fmt.Printf("%-44s %-10s %12s %8d  %s\n",
			it.RepoID, params, humanize.Comma(it.Downloads), it.Likes, it.Origin)
	}
	if len(s.Facets.Pipelines) > 0 {
		var parts []string
		for _, f := range s.Facets.Pipelines {
			parts = append(parts, fmt.Sprintf("%s(%d)", f.Value, f.Count))
		}
		fmt.Printf("pipelines: %s\n", strings.Join(parts, " "))
	}
}

func handleDownload(ctx context.Context, args []string) error {
	fs := commonFlags("download")
	dest := fs.String("dest", "", "destination directory (defaults to models folder)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("download requires a hub URL or owner/repo/file")
	}
	a, err := setup(ctx, fs)
	if err != nil {
		return err
	}
	defer a.close()

	n := catalog.Normalize(fs.Arg(0))
	if n.Query == "" || n.PendingFilename == "" {
		return fmt.Errorf("cannot determine repo and filename from %q", fs.Arg(0))
	}
	dir := *dest
	if dir == "" {
		dir = a.cfg.General.ModelsFolder
	}
	if dir == "" {
		dir = "."
	}
	destPath := filepath.Join(dir, filepath.Base(n.PendingFilename))

	transport := downloads.NewHTTPTransport(a.cfg, a.log)
	tracker := downloads.NewTracker(a.db, transport, a.cfg.General.ModelsFolder, nil, nil, a.log)
	go tracker.Run(ctx)

	ch, cancel := tracker.State().Subscribe()
	defer cancel()
	if err := tracker.Request(ctx, n.Query, n.PendingFilename, destPath, false); err != nil {
		return err
	}
	key := downloads.PendingKey(n.Query, n.PendingFilename)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case st := <-ch:
			for _, j := range st.Active {
				if j.Key() == key && j.Status == downloads.StatusDownloading {
					fmt.Printf("\r%-60s", j.Progress())
				}
			}
			for _, j := range st.History {
				if j.Key() != key {
					continue
				}
				fmt.Println()
				switch j.Status {
				case downloads.StatusCompleted:
					a.met.IncDownloadsCompleted()
					fmt.Printf("done: %s (%s)\n", destPath, humanize.Bytes(uint64(j.BytesDone)))
					return nil
				case downloads.StatusCancelled:
					return errors.New("download cancelled")
				default:
					return fmt.Errorf("download failed: %s", j.Error)
				}
			}
		}
	}
}

func handleJobs(ctx context.Context, args []string) error {
	fs := commonFlags("jobs")
	limit := fs.Int("limit", 20, "max rows")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := setup(ctx, fs)
	if err != nil {
		return err
	}
	defer a.close()
	if a.db == nil {
		return errors.New("no data root configured")
	}
	rows, err := a.db.ListJobHistory(*limit)
	if err != nil {
		return err
	}
	fmt.Printf("%-40s %-12s %12s  %s\n", "FILE", "STATUS", "SIZE", "FINISHED")
	for _, r := range rows {
		fmt.Printf("%-40s %-12s %12s  %s\n",
			r.Filename, r.Status, humanize.Bytes(uint64(r.BytesDone)),
			time.Unix(r.FinishedAt, 0).Format("2006-01-02 15:04"))
	}
	return nil
}

func handleLocal(ctx context.Context, args []string) error {
	fs := commonFlags("local")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := setup(ctx, fs)
	if err != nil {
		return err
	}
	defer a.close()
	dir := a.cfg.General.ModelsFolder
	if dir == "" {
		return errors.New("no models folder configured")
	}
	res, err := scanner.Scan(dir)
	if err != nil {
		return err
	}
	fmt.Printf("%-50s %12s  %s\n", "FILE", "SIZE", "MODIFIED")
	for _, m := range res.Models {
		fmt.Printf("%-50s %12s  %s\n", m.Name, humanize.Bytes(uint64(m.Size)), m.Modified.Format("2006-01-02 15:04"))
	}
	for _, e := range res.Errors {
		a.log.Errorf("scan: %v", e)
	}
	return nil
}

func handleTUI(ctx context.Context, args []string) error {
	fs := commonFlags("tui")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := setup(ctx, fs)
	if err != nil {
		return err
	}
	defer a.close()

	transport := downloads.NewHTTPTransport(a.cfg, a.log)
	tracker := downloads.NewTracker(a.db, transport, a.cfg.General.ModelsFolder,
		func(j downloads.Job) {
			a.met.IncDownloadsCompleted()
			a.log.Infof("loaded %s", j.Filename)
		},
		func(dir string) {
			if res, err := scanner.Scan(dir); err == nil {
				a.log.Infof("models folder rescan: %d model files", len(res.Models))
			}
		}, a.log)
	go tracker.Run(ctx)

	p := tea.NewProgram(tui.New(ctx, a.cfg, a.service, tracker), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	return err
}
