package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/errs"
	"gopkg.in/yaml.v3"
)

// LoadResult is the output of Load, matching spec.md §4.5's
// {success, config, stats, resolvedFilePaths, errors[]} shape.
type LoadResult struct {
	Success           bool
	Config            *Config
	Stats             Stats
	ResolvedFilePaths []string
	Errors            []ValidationError
	Warnings          []string
}

// resolveSource expands one ConfigSource into the concrete YAML file
// paths it names, per the resolution rules in spec.md §4.5.
func resolveSource(src ConfigSource) ([]string, error) {
	switch src.Type {
	case SourceKindFile:
		if _, err := os.Stat(src.Path); err != nil {
			if src.Required {
				return nil, errs.Configuration("required file source %q not found: %v", src.Path, err)
			}
			return nil, nil
		}
		return []string{src.Path}, nil

	case SourceKindDirectory:
		abs := src.Path
		if !filepath.IsAbs(abs) && src.BaseDir != "" {
			abs = filepath.Join(src.BaseDir, abs)
		}
		var matches []string
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			found, err := filepath.Glob(filepath.Join(abs, "**", pattern))
			if err == nil {
				matches = append(matches, found...)
			}
			found, err = filepath.Glob(filepath.Join(abs, pattern))
			if err == nil {
				matches = append(matches, found...)
			}
		}
		matches = append(matches, walkYAML(abs)...)
		matches = dedupe(matches)
		if len(matches) == 0 && src.Required {
			return nil, errs.Configuration("required directory source %q matched no YAML files", src.Path)
		}
		return matches, nil

	case SourceKindGlob:
		pattern := src.Path
		if !filepath.IsAbs(pattern) && src.BaseDir != "" {
			pattern = filepath.Join(src.BaseDir, pattern)
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, errs.Configuration("invalid glob %q: %v", src.Path, err)
		}
		if len(matches) == 0 && src.Required {
			return nil, errs.Configuration("required glob source %q matched no files", src.Path)
		}
		return matches, nil

	default:
		return nil, errs.Configuration("unknown config source type %q", src.Type)
	}
}

// walkYAML recursively finds .yaml/.yml files under root; filepath.Glob's
// "**" isn't actually recursive on most platforms, so this covers nested
// directories the simple Glob call above misses.
func walkYAML(root string) []string {
	var out []string
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil //nolint:nilerr // best-effort walk, caller tolerates partial results
		}
		ext := filepath.Ext(path)
		if ext == ".yaml" || ext == ".yml" {
			out = append(out, path)
		}
		return nil
	})
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// parseFile parses one YAML file into a rawDocument. Parsing errors are
// attributed to the file path; the file is not merged when parsing fails.
func parseFile(path string) (rawDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return rawDocument{}, fmt.Errorf("read %s: %w", path, err)
	}
	var doc rawDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return rawDocument{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

// Load resolves every ConfigSource in sources (in order), parses and
// merges their YAML documents according to opts, and validates the
// result when opts.ValidateMerged is set.
func Load(sources []ConfigSource, opts MergeOptions) *LoadResult {
	result := &LoadResult{}
	m := newMerger(opts)

	var resolved []string
	for _, src := range sources {
		paths, err := resolveSource(src)
		if err != nil {
			result.Errors = append(result.Errors, ValidationError{Field: "sources", Message: err.Error()})
			continue
		}
		resolved = append(resolved, paths...)
	}
	result.ResolvedFilePaths = resolved

	filesMerged := 0
	for _, path := range resolved {
		doc, err := parseFile(path)
		if err != nil {
			result.Errors = append(result.Errors, ValidationError{File: path, Field: "parse", Message: err.Error()})
			continue
		}
		result.Errors = append(result.Errors, m.mergeDocument(path, doc)...)
		filesMerged++
	}

	result.Config = m.cfg
	result.Stats = m.stats(len(resolved), filesMerged)
	result.Warnings = m.warnings

	if opts.ValidateMerged {
		result.Errors = append(result.Errors, m.cfg.ValidateDetailed()...)
		result.Errors = append(result.Errors, m.cfg.ValidateReferences()...)
	}

	result.Success = len(result.Errors) == 0
	return result
}

// LoadFromPath is a convenience wrapper for the common single-path case
// (TOOLS_YAML_PATH pointing at a file, directory, or glob), auto-detecting
// the ConfigSource kind from the filesystem.
func LoadFromPath(path string, opts MergeOptions) *LoadResult {
	if path == "" {
		return Load(nil, opts)
	}
	kind := SourceKindFile
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		kind = SourceKindDirectory
	} else if err != nil {
		kind = SourceKindGlob
	}
	return Load([]ConfigSource{{Type: kind, Path: path, Required: true}}, opts)
}
