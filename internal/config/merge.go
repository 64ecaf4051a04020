package config

import "fmt"

// MergeOptions mirrors the teacher's MergeOptions shape (internal/config/
// merge.go), repurposed from single-document server-config patching to
// multi-document tool/source/toolset merging across files, per spec.md
// §4.5.
type MergeOptions struct {
	MergeArrays           bool `yaml:"mergeArrays" json:"mergeArrays"`
	AllowDuplicateTools   bool `yaml:"allowDuplicateTools" json:"allowDuplicateTools"`
	AllowDuplicateSources bool `yaml:"allowDuplicateSources" json:"allowDuplicateSources"`
	ValidateMerged        bool `yaml:"validateMerged" json:"validateMerged"`
}

// DefaultMergeOptions matches the defaults spelled out in spec.md §4.5.
func DefaultMergeOptions() MergeOptions {
	return MergeOptions{
		MergeArrays:           true,
		AllowDuplicateTools:   false,
		AllowDuplicateSources: false,
		ValidateMerged:        true,
	}
}

// Stats reports what a load/merge pass did, returned alongside the merged
// Config per spec.md §4.5's output shape.
type Stats struct {
	SourcesLoaded  int `json:"sourcesLoaded"`
	SourcesMerged  int `json:"sourcesMerged"`
	ToolsTotal     int `json:"toolsTotal"`
	ToolsetsTotal  int `json:"toolsetsTotal"`
	SourcesTotal   int `json:"sourcesTotal"`
}

// merger accumulates parsed documents, in declared source order, into one
// Config according to opts.
type merger struct {
	opts     MergeOptions
	cfg      *Config
	warnings []string
}

func newMerger(opts MergeOptions) *merger {
	return &merger{opts: opts, cfg: NewEmptyConfig()}
}

// mergeDocument folds one parsed file's contents into the accumulator.
// file is used only for warning/error attribution.
func (m *merger) mergeDocument(file string, doc rawDocument) []ValidationError {
	var out []ValidationError

	for _, s := range doc.Sources {
		if _, exists := m.cfg.Sources[s.Name]; exists {
			if !m.opts.AllowDuplicateSources {
				out = append(out, ValidationError{File: file, Field: "sources." + s.Name, Message: "duplicate source name"})
				continue
			}
			m.warnings = append(m.warnings, fmt.Sprintf("%s: source %q redefined, last wins", file, s.Name))
		}
		m.cfg.Sources[s.Name] = s
	}

	for _, t := range doc.Tools {
		if _, exists := m.cfg.Tools[t.Name]; exists {
			if !m.opts.AllowDuplicateTools {
				out = append(out, ValidationError{File: file, Field: "tools." + t.Name, Message: "duplicate tool name"})
				continue
			}
			m.warnings = append(m.warnings, fmt.Sprintf("%s: tool %q redefined, last wins", file, t.Name))
		}
		m.cfg.Tools[t.Name] = t
	}

	for _, ts := range doc.Toolsets {
		existing, exists := m.cfg.Toolsets[ts.Name]
		if exists && m.opts.MergeArrays {
			merged := existing
			merged.Tools = append(append([]string{}, existing.Tools...), ts.Tools...)
			if ts.Title != "" {
				merged.Title = ts.Title
			}
			if ts.Description != "" {
				merged.Description = ts.Description
			}
			m.cfg.Toolsets[ts.Name] = merged
		} else {
			m.cfg.Toolsets[ts.Name] = ts
		}
	}

	return out
}

func (m *merger) stats(filesLoaded, filesMerged int) Stats {
	return Stats{
		SourcesLoaded: filesLoaded,
		SourcesMerged: filesMerged,
		ToolsTotal:    len(m.cfg.Tools),
		ToolsetsTotal: len(m.cfg.Toolsets),
		SourcesTotal:  len(m.cfg.Sources),
	}
}
