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
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/poiesic/docflow"
	"github.com/poiesic/docflow/config"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/search"
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
}

// printMonitor reports each search stage on stdout.
type printMonitor struct{}

func (printMonitor) Start(query string) { fmt.Printf("query: %q\n", query) }
func (printMonitor) AfterEmbedding(target *core.EmbeddingTarget, dims int) {
	fmt.Printf("embedded with %s v%d (%d dims)\n", target.Model, target.Version, dims)
}
func (printMonitor) AfterSemanticSearch(candidates []*core.SearchResult) {
	fmt.Printf("%d candidates\n", len(candidates))
}
func (printMonitor) VerbatimHit(chunk *core.Chunk)       { fmt.Printf("verbatim hit in chunk %d\n", chunk.ID) }
func (printMonitor) Finish(results []*core.SearchResult) {}

var _ search.SearchMonitor = printMonitor{}

func main() {
	cfg, err := config.Load(os.Getenv("DOCFLOW_CONFIG"))
	if err != nil {
		panic(err)
	}
	db, err := docflow.NewDatabase(cfg.Storage.Path, docflow.WithAIConfig(cfg.AI()))
	if err != nil {
		panic(err)
	}
	defer db.Close()
	searcher, err := db.NewSearcher()
	if err != nil {
		panic(err)
	}

	query := "lighthouse"
	if len(os.Args) > 1 {
		query = strings.Join(os.Args[1:], " ")
	}

	results, err := searcher.FindSimilarWithMonitor(context.Background(), query, 5, printMonitor{})
	if err != nil {
		panic(err)
	}

	fmt.Printf("Found %d hits\n", len(results))
	for i, hit := range results {
		fmt.Printf("%d: '%s' (%d/%d)[%0.3f]\n", i, hit.Chunk.Text, hit.Chunk.DocumentID, hit.Chunk.Ordinal, hit.Score)
	}
}
