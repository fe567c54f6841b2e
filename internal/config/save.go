// Package config provides configuration types, defaults, and persistence for crew.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SaveTracing updates the tracing section in the config file.
// This preserves comments and formatting in other sections by using yaml.Node.
func SaveTracing(configPath string, tracing TracingConfig) error {
	node, err := buildTracingNode(tracing)
	if err != nil {
		return fmt.Errorf("building tracing node: %w", err)
	}
	return saveSection(configPath, "tracing", node)
}

// saveSection replaces (or appends) a single top-level key in the config
// file, leaving the rest of the document untouched.
func saveSection(configPath, key string, value *yaml.Node) error {
	data, err := os.ReadFile(configPath) // #nosec G304 -- user-chosen config path
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	// Parse into yaml.Node to preserve comments
	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	if doc.Kind == 0 {
		// Empty or new file - create document structure
		doc = yaml.Node{
			Kind: yaml.DocumentNode,
			Content: []*yaml.Node{
				{
					Kind: yaml.MappingNode,
					Content: []*yaml.Node{
						{Kind: yaml.ScalarNode, Value: key},
						value,
					},
				},
			},
		}
	} else if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		root := doc.Content[0]
		if root.Kind == yaml.MappingNode {
			found := false
			for i := 0; i < len(root.Content)-1; i += 2 {
				if root.Content[i].Value == key {
					root.Content[i+1] = value
					found = true
					break
				}
			}
			if !found {
				root.Content = append(root.Content,
					&yaml.Node{Kind: yaml.ScalarNode, Value: key},
					value,
				)
			}
		}
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	return writeAtomic(configPath, buf.Bytes())
}

// writeAtomic writes data to path via a temp file and rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".crew.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}

// buildTracingNode converts a TracingConfig into a yaml.Node mapping.
func buildTracingNode(tracing TracingConfig) (*yaml.Node, error) {
	var node yaml.Node
	if err := node.Encode(tracing2yaml(tracing)); err != nil {
		return nil, err
	}
	return &node, nil
}

// tracing2yaml maps TracingConfig fields onto their config-file keys.
// TracingConfig uses mapstructure tags for viper, so the yaml keys are
// spelled out here.
func tracing2yaml(t TracingConfig) map[string]any {
	m := map[string]any{
		"enabled":     t.Enabled,
		"exporter":    t.Exporter,
		"sample_rate": t.SampleRate,
	}
	if t.FilePath != "" {
		m["file_path"] = t.FilePath
	}
	if t.OTLPEndpoint != "" {
		m["otlp_endpoint"] = t.OTLPEndpoint
	}
	if t.ServiceName != "" {
		m["service_name"] = t.ServiceName
	}
	return m
}
