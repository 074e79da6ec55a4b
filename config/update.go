package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ruteri/shardvault/interfaces"
	"gopkg.in/yaml.v3"
)

// SetSchemaID rewrites cluster.schema_id in the configuration file at path.
// The file is edited as a YAML node tree, so comments and ${VAR} references
// are kept as written.
func SetSchemaID(path, schemaID string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrConfig, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrConfig, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrConfig, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("%w: %s is not a YAML mapping", interfaces.ErrConfig, path)
	}

	cluster, err := mappingEntry(doc.Content[0], "cluster", yaml.MappingNode)
	if err != nil {
		return err
	}
	id, err := mappingEntry(cluster, "schema_id", yaml.ScalarNode)
	if err != nil {
		return err
	}
	id.Tag = "!!str"
	id.Style = 0
	id.Value = schemaID

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("could not encode configuration: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("could not encode configuration: %w", err)
	}

	return os.WriteFile(path, buf.Bytes(), info.Mode().Perm())
}

// mappingEntry returns the value under key, appending an empty one of the
// given kind when the key is absent.
func mappingEntry(mapping *yaml.Node, key string, kind yaml.Kind) (*yaml.Node, error) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value != key {
			continue
		}
		value := mapping.Content[i+1]
		if value.Kind != kind {
			return nil, fmt.Errorf("%w: unexpected YAML type for %s", interfaces.ErrConfig, key)
		}
		return value, nil
	}

	value := &yaml.Node{Kind: kind}
	if kind == yaml.MappingNode {
		value.Tag = "!!map"
	}
	mapping.Content = append(mapping.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, value)
	return value, nil
}
