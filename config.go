// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blake3stream

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// yamlOptions mirrors Options but with pointer fields, so a YAML
// document that omits a key is distinguishable from one that sets it
// to the zero value — the same pattern the teacher's lib/config.Load
// uses for its layered config files.
type yamlOptions struct {
	WorkerCount          *int   `yaml:"worker_count"`
	MaxLeafSize          *int   `yaml:"max_leaf_size"`
	MaxInflightPerWorker *int   `yaml:"max_inflight_per_worker"`
	TaskTimeoutMS        *int64 `yaml:"task_timeout_ms"`
}

// OptionsFromYAML parses doc into Options, applies DefaultOptions for
// any field the document omits, and validates the result with the
// same checks New runs. Logger is never set from YAML — config files
// describe tunables, not wiring — and defaults to slog.Default().
func OptionsFromYAML(doc []byte) (Options, error) {
	var raw yamlOptions
	if err := yaml.Unmarshal(doc, &raw); err != nil {
		return Options{}, fmt.Errorf("blake3stream: parsing options YAML: %w", err)
	}

	var o Options
	if raw.WorkerCount != nil {
		o.WorkerCount = *raw.WorkerCount
	}
	if raw.MaxLeafSize != nil {
		o.MaxLeafSize = *raw.MaxLeafSize
	}
	if raw.MaxInflightPerWorker != nil {
		o.MaxInflightPerWorker = *raw.MaxInflightPerWorker
	}
	if raw.TaskTimeoutMS != nil {
		o.TaskTimeout = time.Duration(*raw.TaskTimeoutMS) * time.Millisecond
	}

	o = o.withDefaults()
	if err := o.validate(); err != nil {
		return Options{}, err
	}
	return o, nil
}
