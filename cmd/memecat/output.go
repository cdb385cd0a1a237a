package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

func (c *commandContext) validateOutput() error {
	switch c.format() {
	case outputTable, outputJSON, outputYAML:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (want table, json, or yaml)", c.outputFlag)
	}
}

func (c *commandContext) format() string {
	f := strings.ToLower(strings.TrimSpace(c.outputFlag))
	if f == "" {
		return outputTable
	}
	return f
}

// emit writes v in the selected machine format, or calls human for tables.
func (c *commandContext) emit(cmd *cobra.Command, v any, human func(io.Writer) error) error {
	out := cmd.OutOrStdout()
	switch c.format() {
	case outputJSON:
		return writeJSON(out, v)
	case outputYAML:
		return writeYAML(out, v)
	default:
		return human(out)
	}
}

// writeJSON encodes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeYAML renders v through its JSON form so field names match the JSON
// output. Decoding into a yaml.Node keeps key order.
func writeYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return err
	}
	resetStyle(&node)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	return enc.Close()
}

// resetStyle drops the flow style inherited from JSON so YAML is emitted in
// block form.
func resetStyle(node *yaml.Node) {
	node.Style &^= yaml.FlowStyle
	for _, child := range node.Content {
		resetStyle(child)
	}
}
