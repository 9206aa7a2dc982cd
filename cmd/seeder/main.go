package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/docflow"
	"github.com/poiesic/docflow/blob"
	"github.com/poiesic/docflow/config"
	"github.com/poiesic/docflow/core"
)

// samples are written to the blob directory when no -src file is given.
var samples = map[string]string{
	"lighthouse.txt": `The lighthouse on the northern cape was automated in 1962.
Its lens is a first order Fresnel lens that throws a beam twenty two nautical miles.
Keepers once climbed one hundred and twelve steps to wind the clockwork each night.
Today a solar panel charges the batteries and the old keeper's cottage is a museum.`,
	"bread.md": `# Sourdough basics

Feed the starter twelve hours before mixing. Use equal weights of flour and water.

## Shaping

Fold the dough four times during the bulk rise, then shape a tight boule and
proof it overnight in the refrigerator. Bake covered at 250 C for twenty minutes.`,
	"garden.html": `<html><head><title>Spring planting</title></head><body>
<h1>Spring planting</h1>
<p>Sow peas and spinach as soon as the soil can be worked.</p>
<p>Tomatoes and peppers wait until nights stay above ten degrees.</p>
<ul><li>Mulch garlic beds</li><li>Divide perennials</li></ul>
</body></html>`,
	"trains.csv": `line,from,to,minutes
Coastal,Harbor,North Cape,48
Valley,Harbor,Millbrook,31
Express,Millbrook,Capital,55
`,
	"ferry.json": `{"route": "Harbor to Gull Island", "crossing_minutes": 25,
  "departures": ["07:15", "12:40", "18:05"],
  "notes": {"bikes": "allowed on deck", "winter": "reduced service after October"}}`,
	"orchard.xml": `<orchard name="Hillside">
  <tree variety="Bramley">Cooking apple, picked in late September.</tree>
  <tree variety="Conference">Pear that ripens best off the branch.</tree>
</orchard>`,
	"kite.txt": `A kite flies when the wind pushes against its face and the string holds it at an angle.
Box kites are stable in strong wind while delta kites climb well in light air.
The world record for the longest kite flight is more than one hundred and eighty hours.`,
}

var (
	configPath = flag.String("config", "", "docflow configuration file")
	seedFile   = flag.String("src", "", "file of seed data, one document per paragraph")
	parse      = flag.Bool("parse", true, "parse the appended events before exiting")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

// paragraphsFromFile returns an iterator over blank-line separated paragraphs.
func paragraphsFromFile(filename string) (iter.Seq2[string, string], error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return func(yield func(string, string) bool) {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		var lines []string
		n := 0
		flush := func() bool {
			if len(lines) == 0 {
				return true
			}
			n++
			text := strings.Join(lines, "\n")
			lines = lines[:0]
			return yield(fmt.Sprintf("%s-%03d.txt", base, n), text)
		}
		for scanner.Scan() {
			line := scanner.Text()
			if strings.TrimSpace(line) == "" {
				if !flush() {
					return
				}
				continue
			}
			lines = append(lines, line)
		}
		flush()
	}, nil
}

// fromSamples returns an iterator over the built-in samples.
func fromSamples() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for name, text := range samples {
			if !yield(name, text) {
				return
			}
		}
	}
}

// seed writes every document to dir and records a created event for it.
func seed(ctx context.Context, db *docflow.Database, dir string, docs iter.Seq2[string, string]) (int, error) {
	n := 0
	for name, text := range docs {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(text), 0o644); err != nil {
			return n, err
		}
		if _, err := db.Append(ctx, name, core.OperationCreated); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func main() {
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if err := os.MkdirAll(cfg.Blob.Dir, 0o755); err != nil {
		panic(err)
	}
	store, err := blob.NewDirStore(cfg.Blob.Dir)
	if err != nil {
		panic(err)
	}

	db, err := docflow.NewDatabase(cfg.Storage.Path, docflow.WithAIConfig(cfg.AI()), docflow.WithBlobStore(store))
	if err != nil {
		panic(err)
	}
	defer db.Close()

	ctx := context.Background()

	docs := fromSamples()
	if *seedFile != "" {
		docs, err = paragraphsFromFile(*seedFile)
		if err != nil {
			panic(err)
		}
	}

	n, err := seed(ctx, db, store.Root(), docs)
	if err != nil {
		panic(err)
	}
	slog.Info("appended events", "count", n)

	if !*parse {
		return
	}
	opts, err := cfg.ParserOptions()
	if err != nil {
		panic(err)
	}
	parser, err := db.NewParser(opts...)
	if err != nil {
		panic(err)
	}
	defer parser.Release()

	for {
		processed, err := parser.RunOnce(ctx)
		if err != nil {
			panic(err)
		}
		if processed == 0 {
			break
		}
	}
	slog.Info("parsed events; run `docflow backfill` or `docflow serve` to embed them")
}
