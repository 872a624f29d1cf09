// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package plan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/specialistvlad/benchgrid/internal/ctxlog"
)

// hclPlanFile mirrors the top-level structure of one plan file for decoding.
type hclPlanFile struct {
	Solution *hclSolution `hcl:"solution,block"`
	Targets  []*hclTarget `hcl:"target,block"`
	Phases   []*hclPhase  `hcl:"phase,block"`
	Monitor  *hclMonitor  `hcl:"monitor,block"`
}

type hclSolution struct {
	Name       string    `hcl:"name,label"`
	ResultsDir string    `hcl:"results_dir,optional"`
	Metadata   cty.Value `hcl:"metadata,optional"`
}

type hclTarget struct {
	Name string `hcl:"name,label"`
	Host string `hcl:"host"`
	Port int    `hcl:"port,optional"`
}

type hclPhase struct {
	Name     string            `hcl:"name,label"`
	Kind     string            `hcl:"kind,optional"`
	Optional bool              `hcl:"optional,optional"`
	Run      []string          `hcl:"run,optional"`
	Args     map[string]string `hcl:"args,optional"`
}

type hclMonitor struct {
	Categories []string `hcl:"categories"`
	Interval   string   `hcl:"interval"`
	Duration   string   `hcl:"duration,optional"`
	Grace      string   `hcl:"grace,optional"`
	MaxSamples int      `hcl:"max_samples,optional"`
}

// Load reads the plan from path, which may be a single .hcl file or a
// directory searched recursively. Blocks from all files are consolidated
// into one validated Plan.
func Load(ctx context.Context, path string) (*Plan, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading benchmark plan.", "path", path)

	files, err := findPlanFiles(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl plan files found at %s", path)
	}

	parser := hclparse.NewParser()
	plan := &Plan{}
	for _, file := range files {
		if err := mergeFile(plan, file, parser); err != nil {
			return nil, err
		}
	}

	if err := plan.validate(); err != nil {
		return nil, err
	}
	logger.Debug("Benchmark plan loaded.",
		"solution", plan.Solution, "targets", len(plan.Targets), "phases", len(plan.Phases))
	return plan, nil
}

// findPlanFiles returns the .hcl files under path in a stable order. A
// direct file path is accepted as-is.
func findPlanFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat plan path: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".hcl") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find plan files in %s: %w", path, err)
	}
	sort.Strings(files)
	return files, nil
}

// mergeFile parses one plan file and folds its blocks into the plan.
func mergeFile(plan *Plan, path string, parser *hclparse.Parser) error {
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("parse plan file %s: %w", path, diags)
	}

	var parsed hclPlanFile
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &parsed); diags.HasErrors() {
		return fmt.Errorf("decode plan file %s: %w", path, diags)
	}

	if parsed.Solution != nil {
		if plan.Solution != "" {
			return fmt.Errorf("plan file %s: duplicate solution block (already defined as %q)", path, plan.Solution)
		}
		plan.Solution = parsed.Solution.Name
		plan.ResultsDir = parsed.Solution.ResultsDir
		metadata, err := decodeMetadata(parsed.Solution.Metadata)
		if err != nil {
			return fmt.Errorf("plan file %s: %w", path, err)
		}
		plan.Metadata = metadata
	}

	for _, t := range parsed.Targets {
		port := t.Port
		if port == 0 {
			port = DefaultAgentPort
		}
		plan.Targets = append(plan.Targets, &Target{Name: t.Name, Host: t.Host, Port: port})
	}

	for _, ph := range parsed.Phases {
		kind := Kind(ph.Kind)
		if kind == "" {
			kind = KindRemote
		}
		plan.Phases = append(plan.Phases, &Phase{
			Name:       ph.Name,
			Kind:       kind,
			Optional:   ph.Optional,
			Procedures: ph.Run,
			Args:       ph.Args,
		})
	}

	if parsed.Monitor != nil {
		if plan.Monitor != nil {
			return fmt.Errorf("plan file %s: duplicate monitor block", path)
		}
		monitor, err := decodeMonitor(parsed.Monitor)
		if err != nil {
			return fmt.Errorf("plan file %s: %w", path, err)
		}
		plan.Monitor = monitor
	}
	return nil
}

// decodeMetadata converts the free-form metadata object values to strings.
func decodeMetadata(raw cty.Value) (map[string]string, error) {
	if raw.IsNull() || !raw.IsKnown() {
		return nil, nil
	}
	if !raw.Type().IsObjectType() && !raw.Type().IsMapType() {
		return nil, fmt.Errorf("metadata must be an object of key/value pairs")
	}
	pairs := raw.AsValueMap()
	if len(pairs) == 0 {
		return nil, nil
	}
	metadata := make(map[string]string, len(pairs))
	for key, val := range pairs {
		converted, err := convert.Convert(val, cty.String)
		if err != nil {
			return nil, fmt.Errorf("metadata %q: %w", key, err)
		}
		metadata[key] = converted.AsString()
	}
	return metadata, nil
}

// decodeMonitor parses the monitor block's duration strings.
func decodeMonitor(raw *hclMonitor) (*Monitor, error) {
	interval, err := time.ParseDuration(raw.Interval)
	if err != nil {
		return nil, fmt.Errorf("monitor interval: %w", err)
	}

	monitor := &Monitor{
		Categories: raw.Categories,
		Interval:   interval,
		MaxSamples: raw.MaxSamples,
	}
	if raw.Duration != "" {
		if monitor.Duration, err = time.ParseDuration(raw.Duration); err != nil {
			return nil, fmt.Errorf("monitor duration: %w", err)
		}
	}
	if raw.Grace != "" {
		if monitor.Grace, err = time.ParseDuration(raw.Grace); err != nil {
			return nil, fmt.Errorf("monitor grace: %w", err)
		}
	}
	return monitor, nil
}
