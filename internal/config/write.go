package config

import (
	"os"
	"path/filepath"

	"github.com/rileyhilliard/fleet/internal/errors"
	"gopkg.in/yaml.v3"
)

// AppendHosts adds hosts to the config file at path, creating it when it
// does not exist. The rest of the document, comments included, is kept as
// written. Each host is validated first and names already in the file are
// rejected.
func AppendHosts(path string, hosts []HostConfig) error {
	for _, h := range hosts {
		if err := ValidateHost(h); err != nil {
			return err
		}
	}

	var doc yaml.Node
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Couldn't parse "+path, "Fix the YAML syntax before importing hosts")
		}
	case os.IsNotExist(err):
	default:
		return errors.WrapWithCode(err, errors.ErrConfig, "Couldn't read "+path, "Check file permissions")
	}

	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
		root := doc.Content[0]
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: "version"},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: "1"},
		)
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return errors.New(errors.ErrConfig, path+" is not a YAML mapping", "Start the file with 'version: 1'")
	}

	seq := mappingValue(root, "hosts")
	if seq == nil {
		seq = &yaml.Node{Kind: yaml.SequenceNode}
		root.Content = append(root.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: "hosts"}, seq)
	}
	if seq.Kind != yaml.SequenceNode {
		return errors.New(errors.ErrConfig, "'hosts' in "+path+" is not a list", "Make hosts a YAML sequence")
	}

	existing := make(map[string]bool)
	for _, item := range seq.Content {
		if name := mappingValue(item, "name"); name != nil {
			existing[name.Value] = true
		}
	}

	for _, h := range hosts {
		if existing[h.Name] {
			return errors.New(errors.ErrConfig,
				"Host '"+h.Name+"' is already in "+path,
				"Remove it from the selection or rename the existing entry")
		}
		existing[h.Name] = true

		var node yaml.Node
		if err := node.Encode(h); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig, "Couldn't encode host "+h.Name, "")
		}
		seq.Content = append(seq.Content, &node)
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, "Couldn't render "+path, "")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig, "Couldn't create "+dir, "Check directory permissions")
		}
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, "Couldn't write "+path, "Check file permissions")
	}
	return nil
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}
