// Package manifest provides loading and validation of goferry batch manifests.
//
// A batch manifest is a YAML or JSON file listing (source, destination) pairs
// to transfer, plus the conflict policy, worker settings and output target for
// the run.
//
// Manifests are validated against a JSON Schema before use. The schema
// enforces strict typing and disallows unknown properties.
//
// Example manifest (YAML):
//
//	version: "1.0"
//	on_exists: rename
//	concurrency: 4
//	destination_root: ./downloads
//	destination_template: "{host}/{key}"
//	exclude:
//	  - "**/*.tmp"
//	items:
//	  - source: https://example.com/reports/2024/q1.csv
//	  - source: s3://my-bucket/exports/users.parquet
//	    destination: ./exports/users.parquet
//	    on_exists: replace
//	output:
//	  destination: stdout
package manifest

// Manifest represents a validated batch manifest.
type Manifest struct {
	// Schema is an optional JSON Schema reference for editor support.
	// Example: "https://schemas.3leaps.dev/goferry/v1.0.0/batch-manifest.schema.json"
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Version is the manifest schema version. Must be "1.0".
	Version string `json:"version" yaml:"version"`

	// OnExists is the default conflict policy for items that do not set one.
	// Values: "replace" | "rename" | "use-existing". Default: "rename".
	OnExists string `json:"on_exists,omitempty" yaml:"on_exists,omitempty"`

	// Concurrency is the number of transfer workers.
	// Range: 1-256. Default: 4.
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`

	// RateLimit is the maximum transfers started per second (0 = unlimited).
	RateLimit float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`

	// DestinationRoot is the directory that templated and relative item
	// destinations resolve against. Default: ".".
	DestinationRoot string `json:"destination_root,omitempty" yaml:"destination_root,omitempty"`

	// DestinationTemplate derives a destination for items without one.
	// See CompileTemplate for placeholders.
	DestinationTemplate string `json:"destination_template,omitempty" yaml:"destination_template,omitempty"`

	// Exclude lists doublestar glob patterns. Items whose source key matches
	// any pattern are skipped.
	Exclude []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`

	// S3 configures the provider used for s3:// sources. Optional.
	S3 *S3Config `json:"s3,omitempty" yaml:"s3,omitempty"`

	// Items lists the pairs to transfer, in order.
	Items []Item `json:"items" yaml:"items"`

	// Output configures output destination and progress (optional).
	Output OutputConfig `json:"output,omitempty" yaml:"output,omitempty"`
}

// Item is a single transfer request.
type Item struct {
	// Source is a local path, file:// URI or remote URL.
	Source string `json:"source" yaml:"source"`

	// Destination is a local path or file:// URI. Optional when the manifest
	// has a destination template.
	Destination string `json:"destination,omitempty" yaml:"destination,omitempty"`

	// OnExists overrides the manifest policy for this item.
	OnExists string `json:"on_exists,omitempty" yaml:"on_exists,omitempty"`
}

// S3Config configures the S3 source provider.
type S3Config struct {
	// Region is the AWS region (e.g., "us-east-1"). Optional.
	Region string `json:"region,omitempty" yaml:"region,omitempty"`

	// Endpoint is a custom endpoint URL for S3-compatible storage. Optional.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// Profile is the AWS credential profile name. Optional.
	Profile string `json:"profile,omitempty" yaml:"profile,omitempty"`

	// ForcePathStyle enables path-style addressing.
	ForcePathStyle bool `json:"force_path_style,omitempty" yaml:"force_path_style,omitempty"`
}

// OutputConfig configures output destination and format.
type OutputConfig struct {
	// Destination is the output target.
	// Values: "stdout" or "file:/path/to/output.jsonl"
	// Default: "stdout".
	Destination string `json:"destination,omitempty" yaml:"destination,omitempty"`

	// Progress enables progress record emission.
	// Default: true.
	Progress *bool `json:"progress,omitempty" yaml:"progress,omitempty"`
}

// Default values for optional configuration fields.
const (
	// DefaultVersion is the current manifest schema version.
	DefaultVersion = "1.0"

	// DefaultOnExists is the default conflict policy.
	DefaultOnExists = "rename"

	// DefaultConcurrency is the default number of transfer workers.
	DefaultConcurrency = 4

	// DefaultDestinationRoot is the default base for derived destinations.
	DefaultDestinationRoot = "."

	// DefaultDestination is the default output destination.
	DefaultDestination = "stdout"

	// DefaultProgress is the default value for progress emission.
	DefaultProgress = true
)

// Defaults supplies values for fields a manifest leaves unset, typically from
// the application config. Zero fields fall back to the package defaults.
type Defaults struct {
	OnExists    string
	Concurrency int

	// RateLimit applies only when the manifest's rate_limit is 0.
	RateLimit float64
}

// ApplyDefaults fills in default values for optional fields.
func (m *Manifest) ApplyDefaults() {
	m.ApplyDefaultsFrom(Defaults{})
}

// ApplyDefaultsFrom fills optional fields from d, then from the package
// defaults.
func (m *Manifest) ApplyDefaultsFrom(d Defaults) {
	if m.OnExists == "" {
		m.OnExists = orDefault(d.OnExists, DefaultOnExists)
	}
	if m.Concurrency == 0 {
		m.Concurrency = d.Concurrency
		if m.Concurrency <= 0 {
			m.Concurrency = DefaultConcurrency
		}
	}
	if m.RateLimit == 0 && d.RateLimit > 0 {
		m.RateLimit = d.RateLimit
	}
	if m.DestinationRoot == "" {
		m.DestinationRoot = DefaultDestinationRoot
	}

	if m.Output.Destination == "" {
		m.Output.Destination = DefaultDestination
	}
	if m.Output.Progress == nil {
		defaultProgress := DefaultProgress
		m.Output.Progress = &defaultProgress
	}
}

// ProgressEnabled returns whether progress records should be emitted.
func (o *OutputConfig) ProgressEnabled() bool {
	if o.Progress == nil {
		return DefaultProgress
	}
	return *o.Progress
}
