package config

// SourceKind is the kind of a config source entry (C5 §4.5).
type SourceKind string

const (
	SourceKindFile      SourceKind = "file"
	SourceKindDirectory SourceKind = "directory"
	SourceKindGlob      SourceKind = "glob"
)

// ConfigSource describes where to find one or more YAML documents to load
// and merge. It is distinct from SourceSpec (a database connection); the
// name clash with the original tool is unfortunate but matches spec.md's
// own terminology in §4.5 ("Sources: {type, path, baseDir?, required}").
type ConfigSource struct {
	Type     SourceKind `yaml:"type" json:"type"`
	Path     string     `yaml:"path" json:"path"`
	BaseDir  string     `yaml:"baseDir,omitempty" json:"baseDir,omitempty"`
	Required bool       `yaml:"required" json:"required"`
}
