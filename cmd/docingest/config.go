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
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/elastic/go-docingest"
	"github.com/elastic/go-docingest/csvreader"
)

// config is the layout of the TOML configuration file.
type config struct {
	Elasticsearch elasticsearchConfig `toml:"elasticsearch"`
	Source        sourceConfig        `toml:"source"`
	Dispatch      dispatchConfig      `toml:"dispatch"`
}

type elasticsearchConfig struct {
	Addresses            []string `toml:"addresses"`
	Username             string   `toml:"username"`
	Password             string   `toml:"password"`
	APIKey               string   `toml:"api_key"`
	MaxRetries           int      `toml:"max_retries"`
	DisableRetry         bool     `toml:"disable_retry"`
	RetryInitialInterval duration `toml:"retry_initial_interval"`
	RetryMaxInterval     duration `toml:"retry_max_interval"`
	RequestTimeout       duration `toml:"request_timeout"`
}

type sourceConfig struct {
	Kind                string `toml:"kind"`
	Encoding            string `toml:"encoding"`
	FieldNameMapper     string `toml:"field_name_mapper"`
	TimestampField      string `toml:"timestamp_field"`
	Dialect             string `toml:"dialect"`
	NoHeader            bool   `toml:"no_header"`
	UniqueIDField       int    `toml:"unique_id_field"`
	LatitudeFieldNames  string `toml:"latitude_field_names"`
	LongitudeFieldNames string `toml:"longitude_field_names"`
	LocationFieldName   string `toml:"location_field_name"`
	JSONStyle           string `toml:"json_style"`
	UniqueIDJSONPath    string `toml:"unique_id_json_path"`
	RoutingJSONPath     string `toml:"routing_json_path"`
	RoutingExpression   string `toml:"routing_expression"`
}

type dispatchConfig struct {
	Mode             string                 `toml:"mode"`
	Index            string                 `toml:"index"`
	BatchWindow      int                    `toml:"batch_window"`
	CompressionLevel int                    `toml:"compression_level"`
	Refresh          string                 `toml:"refresh"`
	Concurrency      int                    `toml:"concurrency"`
	Action           docingest.ActionConfig `toml:"action"`
}

// duration decodes TOML strings such as "250ms" into a time.Duration.
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

func defaultConfig() config {
	return config{
		Elasticsearch: elasticsearchConfig{
			Addresses:            []string{"http://localhost:9200"},
			MaxRetries:           3,
			RetryInitialInterval: duration(100 * time.Millisecond),
			RetryMaxInterval:     duration(time.Minute),
		},
		Source: sourceConfig{
			Kind:            "csv",
			FieldNameMapper: "identity",
			Dialect:         "default",
			JSONStyle:       "array",
		},
		Dispatch: dispatchConfig{
			Mode:        "bulk",
			Index:       "documents",
			BatchWindow: docingest.DefaultBatchWindow,
			Concurrency: 1,
		},
	}
}

// loadConfig reads the configuration file at path over the defaults. An
// empty path returns the defaults.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return cfg, fmt.Errorf("invalid config file %s:\n%s", path, strict.String())
		}
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, cfg.validate()
}

func (cfg config) validate() error {
	switch cfg.Dispatch.Mode {
	case "bulk", "single":
	default:
		return fmt.Errorf("invalid dispatch mode %q: expected bulk or single", cfg.Dispatch.Mode)
	}
	if cfg.Dispatch.Index == "" {
		return errors.New("dispatch index must not be empty")
	}
	if cfg.Dispatch.Concurrency < 1 {
		return fmt.Errorf("expected concurrency >= 1, got %d", cfg.Dispatch.Concurrency)
	}
	if len(cfg.Elasticsearch.Addresses) == 0 {
		return errors.New("at least one Elasticsearch address is required")
	}
	return nil
}

// sourceConfig translates the source section into a docingest.SourceConfig.
func (c sourceConfig) sourceConfig() (docingest.SourceConfig, error) {
	var out docingest.SourceConfig
	kind, err := docingest.ParseSourceKind(c.Kind)
	if err != nil {
		return out, err
	}
	mapper, err := docingest.ParseFieldNameMapper(c.FieldNameMapper)
	if err != nil {
		return out, err
	}
	dialect, ok := csvreader.DialectByName(c.Dialect)
	if !ok {
		return out, fmt.Errorf("unknown CSV dialect %q", c.Dialect)
	}
	style, err := docingest.ParseJSONStyle(c.JSONStyle)
	if err != nil {
		return out, err
	}
	return docingest.SourceConfig{
		Kind:                kind,
		FieldNameMapper:     mapper,
		TimestampField:      c.TimestampField,
		Dialect:             dialect,
		NoHeaderRecord:      c.NoHeader,
		UniqueIDField:       c.UniqueIDField,
		LatitudeFieldNames:  c.LatitudeFieldNames,
		LongitudeFieldNames: c.LongitudeFieldNames,
		LocationFieldName:   c.LocationFieldName,
		JSONStyle:           style,
		UniqueIDJSONPath:    c.UniqueIDJSONPath,
		RoutingJSONPath:     c.RoutingJSONPath,
		RoutingExpression:   c.RoutingExpression,
	}, nil
}
