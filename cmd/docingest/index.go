// Licensed to Elasticsearch B.V. under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. Elasticsearch B.V. licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.elastic.co/apm/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/elastic/go-docingest"
	"github.com/elastic/go-docingest/message"
)

type indexOptions struct {
	*globalOptions

	index       string
	kind        string
	mode        string
	refresh     string
	batchWindow int
	concurrency int
	esURLs      []string
	metadata    map[string]string
	apm         bool
}

// documentDispatcher is implemented by docingest.BulkDispatcher and
// docingest.SingleDispatcher.
type documentDispatcher interface {
	Dispatch(ctx context.Context, msg *message.Message, src docingest.Source, index string) (docingest.DispatchStats, error)
}

func newIndexCommand(global *globalOptions) *cobra.Command {
	opts := &indexOptions{globalOptions: global}
	cmd := &cobra.Command{
		Use:   "index [file...]",
		Short: "Index files into Elasticsearch",
		Long: `Index reads each file as one message, builds its documents and
dispatches them to Elasticsearch. Use "-" to read standard input.

The index name may reference message metadata, for example
"logs-%message{filename}". Each message carries the base name of its file
under the "filename" key, plus any --metadata pairs.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, args, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.index, "index", "i", "", "target index, may contain %message{key} placeholders")
	flags.StringVarP(&opts.kind, "kind", "k", "", "source kind: csv, csv-geo, json-object, json-array or simple")
	flags.StringVarP(&opts.mode, "mode", "m", "", "dispatch mode: bulk or single")
	flags.StringVar(&opts.refresh, "refresh", "", "refresh policy: true, false or wait_for")
	flags.IntVar(&opts.batchWindow, "batch-window", 0, "maximum operations per bulk request")
	flags.IntVar(&opts.concurrency, "concurrency", 0, "number of files dispatched concurrently")
	flags.StringSliceVar(&opts.esURLs, "es-url", nil, "Elasticsearch address, may be repeated")
	flags.StringToStringVar(&opts.metadata, "metadata", nil, "message metadata as key=value pairs")
	flags.BoolVar(&opts.apm, "apm", false, "trace requests with the Elastic APM agent configured from ELASTIC_APM_* variables")
	return cmd
}

// applyFlags overrides cfg with the flags set on the command line.
func (opts *indexOptions) applyFlags(cmd *cobra.Command, cfg *config) {
	flags := cmd.Flags()
	if flags.Changed("index") {
		cfg.Dispatch.Index = opts.index
	}
	if flags.Changed("kind") {
		cfg.Source.Kind = opts.kind
	}
	if flags.Changed("mode") {
		cfg.Dispatch.Mode = opts.mode
	}
	if flags.Changed("refresh") {
		cfg.Dispatch.Refresh = opts.refresh
	}
	if flags.Changed("batch-window") {
		cfg.Dispatch.BatchWindow = opts.batchWindow
	}
	if flags.Changed("concurrency") {
		cfg.Dispatch.Concurrency = opts.concurrency
	}
	if flags.Changed("es-url") {
		cfg.Elasticsearch.Addresses = opts.esURLs
	}
}

func runIndex(cmd *cobra.Command, args []string, opts *indexOptions) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	opts.applyFlags(cmd, &cfg)
	if err := cfg.validate(); err != nil {
		return err
	}

	logger, err := newLogger(opts.debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	srcCfg, err := cfg.Source.sourceConfig()
	if err != nil {
		return err
	}
	srcCfg.Logger = logger

	d, err := newDocumentDispatcher(cfg, logger, opts.apm)
	if err != nil {
		return err
	}

	stats := make([]docingest.DispatchStats, len(args))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(cfg.Dispatch.Concurrency)
	for i, path := range args {
		g.Go(func() error {
			payload, err := readPayload(cmd.InOrStdin(), path)
			if err != nil {
				return err
			}
			md := maps.Clone(opts.metadata)
			if md == nil {
				md = make(map[string]string)
			}
			md["filename"] = filepath.Base(path)
			msg := message.New(payload,
				message.WithMetadata(md),
				message.WithEncoding(cfg.Source.Encoding),
			)
			src, err := docingest.BuildDocuments(msg, srcCfg)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			stats[i], err = d.Dispatch(ctx, msg, src, msg.Resolve(cfg.Dispatch.Index))
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			return nil
		})
	}
	err = g.Wait()

	var total docingest.DispatchStats
	for i, path := range args {
		s := stats[i]
		cmd.Printf("%s: %d documents, %d indexed, %d failed, %d requests\n",
			path, s.Documents, s.Indexed, s.Failed, s.Requests)
		total.Documents += s.Documents
		total.Indexed += s.Indexed
		total.Failed += s.Failed
		total.Requests += s.Requests
	}
	if len(args) > 1 {
		cmd.Printf("total: %d documents, %d indexed, %d failed, %d requests\n",
			total.Documents, total.Indexed, total.Failed, total.Requests)
	}
	return err
}

func newDocumentDispatcher(cfg config, logger *zap.Logger, withAPM bool) (documentDispatcher, error) {
	resolver, err := cfg.Dispatch.Action.Resolver()
	if err != nil {
		return nil, err
	}
	client, err := newElasticsearchClient(cfg.Elasticsearch, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}
	dcfg := docingest.Config{
		Logger:         logger,
		ActionResolver: resolver,
		Refresh:        cfg.Dispatch.Refresh,
		FlushTimeout:   time.Duration(cfg.Elasticsearch.RequestTimeout),
	}
	if withAPM {
		dcfg.Tracer = apm.DefaultTracer()
	}
	if cfg.Dispatch.Mode == "single" {
		return docingest.NewSingleDispatcher(client, dcfg)
	}
	return docingest.NewBulkDispatcher(client, docingest.BulkConfig{
		Config:           dcfg,
		BatchWindow:      cfg.Dispatch.BatchWindow,
		CompressionLevel: cfg.Dispatch.CompressionLevel,
	})
}

func readPayload(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return payload, nil
}
