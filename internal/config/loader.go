package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ErrUnresolvedVariable is reported for a ${VAR} with no value and no default.
var ErrUnresolvedVariable = errors.New("config: unresolved variable")

// envPattern matches ${VAR} and ${VAR:-default} expressions.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// Load reads a configuration file, expands environment variables in its
// scalar values and applies defaults. Keys and comments are never expanded,
// and an expanded value cannot change the document's structure.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := expandNode(&doc); err != nil {
		return nil, fmt.Errorf("config: expanding variables in %s: %w", path, err)
	}

	cfg, err := decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML without variable expansion and applies defaults.
func Parse(raw []byte) (*Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return decode(&doc)
}

func decode(doc *yaml.Node) (*Config, error) {
	var cfg Config
	if len(doc.Content) > 0 {
		if err := doc.Decode(&cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// expandNode substitutes variables in every scalar value under n. Mapping
// keys are left alone. Every unresolved variable is reported with its line.
func expandNode(n *yaml.Node) error {
	var errs []error
	var walk func(*yaml.Node)
	walk = func(n *yaml.Node) {
		switch n.Kind {
		case yaml.DocumentNode, yaml.SequenceNode:
			for _, c := range n.Content {
				walk(c)
			}
		case yaml.MappingNode:
			for i := 1; i < len(n.Content); i += 2 {
				walk(n.Content[i])
			}
		case yaml.ScalarNode:
			if !envPattern.MatchString(n.Value) {
				return
			}
			n.Value = envPattern.ReplaceAllStringFunc(n.Value, func(match string) string {
				idx := envPattern.FindStringSubmatchIndex(match)
				name := match[idx[2]:idx[3]]
				if v, ok := os.LookupEnv(name); ok {
					return v
				}
				if idx[4] >= 0 {
					return match[idx[4]:idx[5]]
				}
				errs = append(errs, fmt.Errorf("%w: %s (line %d)", ErrUnresolvedVariable, name, n.Line))
				return match
			})
			if n.Style == 0 {
				// Let a plain scalar resolve again, so ${PORT} can fill an int.
				n.Tag = ""
			}
		}
	}
	walk(n)
	return errors.Join(errs...)
}
