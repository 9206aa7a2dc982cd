// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/poiesic/docflow"
	"github.com/poiesic/docflow/blob"
	"github.com/poiesic/docflow/config"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/metrics"
	"github.com/urfave/cli/v2"
)

const configKey = "config"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "docflow",
		Usage: "Asynchronous document ingestion, enrichment and search",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
				EnvVars: []string{"DOCFLOW_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error); overrides the config file",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory; overrides the config file",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:      "append",
				Usage:     "Record that an item was uploaded or deleted",
				ArgsUsage: "ITEM_ID",
				Action:    appendCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "op",
						Usage: "Operation: created or deleted",
						Value: string(core.OperationCreated),
					},
					&cli.StringFlag{
						Name:  "source",
						Usage: "Blob reference holding the item's bytes (defaults to ITEM_ID)",
					},
				},
			},
			{
				Name:      "reissue",
				Usage:     "Move a failed event back to the queue",
				ArgsUsage: "EVENT_ID",
				Action:    reissueCommand,
			},
			{
				Name:   "parse",
				Usage:  "Parse queued events until the queue is empty",
				Action: parseCommand,
			},
			{
				Name:   "backfill",
				Usage:  "Embed every pending, failed or stale chunk, then exit",
				Action: backfillCommand,
			},
			{
				Name:  "bump-version",
				Usage: "Raise the embedding version so backfill re-embeds all chunks",
				Description: "Model and vector size come from the ai section of the config. " +
					"Changing either there migrates the chunks on the next start.",
				Action: bumpVersionCommand,
			},
			{
				Name:      "search",
				Usage:     "Find chunks similar to a query",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of results",
						Value:   5,
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Show queue depths and enrichment progress",
				Action: statusCommand,
			},
			{
				Name:   "events",
				Usage:  "List events in one status",
				Action: eventsCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Event status: new, processing, done or failed",
						Value: string(core.EventFailed),
					},
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of events",
						Value:   20,
					},
				},
			},
			{
				Name:      "documents",
				Usage:     "Show the document history of an item",
				ArgsUsage: "ITEM_ID",
				Action:    documentsCommand,
			},
			{
				Name:   "serve",
				Usage:  "Run the parser and enrichment workers until interrupted",
				Action: serveCommand,
			},
		},
	}
}

// setup loads the configuration and installs the default logger.
func setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if db := c.String("db"); db != "" {
		cfg.Storage.Path = db
		cfg.Storage.InMemory = false
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}

	level, err := config.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

func loadedConfig(c *cli.Context) config.Config {
	if cfg, ok := c.App.Metadata[configKey].(config.Config); ok {
		return cfg
	}
	return config.Default()
}

func openDatabase(c *cli.Context) (*docflow.Database, config.Config, error) {
	cfg := loadedConfig(c)

	if err := os.MkdirAll(cfg.Blob.Dir, 0o755); err != nil {
		return nil, cfg, fmt.Errorf("failed to create blob directory: %w", err)
	}
	store, err := blob.NewDirStore(cfg.Blob.Dir)
	if err != nil {
		return nil, cfg, fmt.Errorf("failed to open blob store: %w", err)
	}

	opts := []docflow.DatabaseOption{
		docflow.WithAIConfig(cfg.AI()),
		docflow.WithBlobStore(store),
	}
	if cfg.Storage.InMemory {
		opts = append(opts, docflow.WithInMemory())
	}
	db, err := docflow.NewDatabase(cfg.Storage.Path, opts...)
	if err != nil {
		return nil, cfg, fmt.Errorf("failed to open database: %w", err)
	}
	return db, cfg, nil
}

func appendCommand(c *cli.Context) error {
	itemID := c.Args().First()
	if itemID == "" {
		return errors.New("ITEM_ID is required")
	}
	op, err := core.ParseOperation(c.String("op"))
	if err != nil {
		return err
	}

	db, _, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	event, err := db.AppendSource(c.Context, itemID, op, c.String("source"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Appended event %d (%s %s)\n", event.ID, event.Operation, event.ItemID)
	return nil
}

func reissueCommand(c *cli.Context) error {
	id, err := strconv.ParseUint(c.Args().First(), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid EVENT_ID %q: %w", c.Args().First(), err)
	}

	db, _, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Reissue(c.Context, core.ID(id)); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Reissued event %d\n", id)
	return nil
}

func parseCommand(c *cli.Context) error {
	db, cfg, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	opts, err := cfg.ParserOptions()
	if err != nil {
		return err
	}
	parser, err := db.NewParser(opts...)
	if err != nil {
		return err
	}
	defer parser.Release()

	total := 0
	for {
		n, err := parser.RunOnce(c.Context)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		total += n
	}
	fmt.Fprintf(c.App.Writer, "Processed %d events\n", total)
	return nil
}

func backfillCommand(c *cli.Context) error {
	db, cfg, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	w, err := db.NewBackfillWorker(cfg.Enrich())
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := w.Drain(ctx, c.App.ErrWriter); err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}
	return nil
}

func bumpVersionCommand(c *cli.Context) error {
	db, _, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	target, err := db.BumpEmbeddingVersion(c.Context, "", 0)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Embedding target: %s v%d (%d dims)\n", target.Model, target.Version, target.Dimensions)
	return nil
}

func searchCommand(c *cli.Context) error {
	query := c.Args().First()
	if query == "" {
		return errors.New("QUERY is required")
	}

	db, _, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	searcher, err := db.NewSearcher()
	if err != nil {
		return err
	}
	results, err := searcher.FindSimilar(c.Context, query, c.Int("limit"))
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(c.App.Writer, "No results")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(c.App.Writer, "%d. [%.3f] doc=%d chunk=%d\n   %s\n", i+1, r.Score, r.Chunk.DocumentID, r.Chunk.Ordinal, r.Chunk.Text)
	}
	return nil
}

func statusCommand(c *cli.Context) error {
	db, _, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	status, err := db.Status(c.Context)
	if err != nil {
		return err
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Embedding target: %s v%d (%d dims)\n", status.Target.Model, status.Target.Version, status.Target.Dimensions)
	fmt.Fprintln(out, "Events:")
	for _, s := range []core.EventStatus{core.EventNew, core.EventProcessing, core.EventDone, core.EventFailed} {
		fmt.Fprintf(out, "  %-10s %d\n", s, status.Events[s])
	}
	fmt.Fprintln(out, "Chunks:")
	for _, s := range []core.EnrichmentStatus{core.ChunkPending, core.ChunkProcessing, core.ChunkCompleted, core.ChunkFailed} {
		fmt.Fprintf(out, "  %-10s %d\n", s, status.Chunks.ByStatus[s])
	}
	fmt.Fprintf(out, "  %-10s %d\n", "stale", status.Chunks.Stale)

	if len(status.Checkpoints) > 0 {
		sort.Slice(status.Checkpoints, func(i, j int) bool {
			return status.Checkpoints[i].Worker < status.Checkpoints[j].Worker
		})
		fmt.Fprintln(out, "Workers:")
		for _, cp := range status.Checkpoints {
			fmt.Fprintf(out, "  %-10s last run %s: %d claimed, %d completed, %d failed, %d exhausted\n",
				cp.Worker, cp.LastRunAt.Format(time.RFC3339), cp.Claimed, cp.Completed, cp.Failed, cp.Exhausted)
		}
	}
	return nil
}

func eventsCommand(c *cli.Context) error {
	status := core.EventStatus(c.String("status"))
	if !slices.Contains(core.EventStatuses, status) {
		return fmt.Errorf("unknown event status %q", status)
	}

	db, _, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	events, err := db.EventLog().ListEvents(c.Context, status, c.Int("limit"))
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintf(c.App.Writer, "No %s events\n", status)
		return nil
	}
	for _, e := range events {
		fmt.Fprintf(c.App.Writer, "%d %s %s attempts=%d", e.ID, e.Operation, e.ItemID, e.Attempts)
		if e.ErrorDetail != "" {
			fmt.Fprintf(c.App.Writer, " error=%q", e.ErrorDetail)
		}
		fmt.Fprintln(c.App.Writer)
	}
	return nil
}

func documentsCommand(c *cli.Context) error {
	itemID := c.Args().First()
	if itemID == "" {
		return errors.New("ITEM_ID is required")
	}

	db, _, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	docs, err := db.DocumentRepository().ListDocuments(c.Context, itemID)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Fprintf(c.App.Writer, "No documents for %s\n", itemID)
		return nil
	}
	for _, d := range docs {
		state := "active"
		if d.Deleted {
			state = "inactive"
		}
		fmt.Fprintf(c.App.Writer, "%d event=%d chunks=%d %s\n", d.ID, d.EventID, d.ChunkCount, state)
	}
	return nil
}

func serveCommand(c *cli.Context) error {
	db, cfg, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := cfg.ParserOptions()
	if err != nil {
		return err
	}
	parser, err := db.NewParser(opts...)
	if err != nil {
		return err
	}
	defer parser.Release()

	type loop struct {
		name string
		run  func(context.Context) error
	}
	loops := []loop{{name: "parser", run: parser.Run}}

	if cfg.Enrichment.Inline {
		w, err := db.NewInlineWorker(cfg.Enrich())
		if err != nil {
			return err
		}
		loops = append(loops, loop{name: w.Name(), run: w.Run})
	}
	if cfg.Enrichment.Backfill {
		w, err := db.NewBackfillWorker(cfg.Enrich())
		if err != nil {
			return err
		}
		loops = append(loops, loop{name: w.Name(), run: w.Run})
	}

	var srv *http.Server
	if cfg.Metrics.Addr != "" {
		metrics.RegisterMetrics()
		srv = newServer(cfg.Metrics.Addr, newRouter(db))
		go func() {
			slog.Info("starting http server", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server error", "err", err)
			}
		}()
	}

	errs := make(chan error, len(loops))
	var wg sync.WaitGroup
	for _, l := range loops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errs <- fmt.Errorf("%s: %w", l.name, err)
				stop()
			}
		}()
	}

	<-ctx.Done()
	slog.Info("shutting down")
	wg.Wait()
	close(errs)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("error during metrics shutdown", "err", err)
		}
	}

	var joined error
	for err := range errs {
		joined = errors.Join(joined, err)
	}
	return joined
}
