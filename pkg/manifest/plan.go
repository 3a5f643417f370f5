package manifest

import (
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/3leaps/goferry/pkg/locator"
	"github.com/3leaps/goferry/pkg/transfer"
)

// Pair is a numbered transfer request resolved from a manifest item.
type Pair struct {
	// Seq is the 1-based position of the item in the manifest.
	Seq int

	Source      string
	Destination string
	Policy      transfer.ConflictPolicy

	// Excluded is true when the source key matched an exclude pattern.
	Excluded bool

	// ExcludedBy is the matching pattern.
	ExcludedBy string
}

// Pairs resolves every item into a Pair, in manifest order.
//
// Item destinations win over the template; relative destinations and
// template output resolve against DestinationRoot. Excluded items are kept
// (flagged) so sequence numbers stay stable across edits to the exclude list.
func (m *Manifest) Pairs() ([]Pair, error) {
	defaultPolicy, err := transfer.ParsePolicy(orDefault(m.OnExists, DefaultOnExists))
	if err != nil {
		return nil, err
	}

	var tpl *Template
	if m.DestinationTemplate != "" {
		if tpl, err = CompileTemplate(m.DestinationTemplate); err != nil {
			return nil, err
		}
	}
	root := orDefault(m.DestinationRoot, DefaultDestinationRoot)

	pairs := make([]Pair, 0, len(m.Items))
	for i, it := range m.Items {
		p := Pair{Seq: i + 1, Source: it.Source, Policy: defaultPolicy}
		if it.OnExists != "" {
			if p.Policy, err = transfer.ParsePolicy(it.OnExists); err != nil {
				return nil, fmt.Errorf("item %d: %w", p.Seq, err)
			}
		}

		key, err := KeyOf(it.Source)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", p.Seq, err)
		}
		p.ExcludedBy = matchExclude(m.Exclude, key)
		p.Excluded = p.ExcludedBy != ""

		switch {
		case it.Destination != "":
			p.Destination = resolveDestination(root, it.Destination)
		case tpl != nil:
			rel, err := tpl.Apply(key)
			if err != nil {
				if p.Excluded {
					// Excluded items never run; a missing destination is fine.
					break
				}
				return nil, fmt.Errorf("item %d: %w", p.Seq, err)
			}
			p.Destination = filepath.Join(root, filepath.FromSlash(rel))
		default:
			return nil, fmt.Errorf("item %d: no destination", p.Seq)
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

// resolveDestination anchors relative local paths at root. URIs and absolute
// paths are returned unchanged.
func resolveDestination(root, dst string) string {
	if locator.Classify(dst) != locator.KindLocalPath || filepath.IsAbs(dst) {
		return dst
	}
	return filepath.Join(root, dst)
}

// matchExclude returns the first pattern matching the source key, or "".
// Patterns are tried against the key and against host/key.
func matchExclude(patterns []string, key SourceKey) string {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, key.Key); ok {
			return pattern
		}
		if key.Host != "" {
			if ok, _ := doublestar.Match(pattern, key.Host+"/"+key.Key); ok {
				return pattern
			}
		}
	}
	return ""
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
