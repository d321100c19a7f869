package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"hookfeed/internal/domain/event"
	"hookfeed/internal/errs"
	"hookfeed/internal/ports"
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Normalize one webhook payload offline",
	Long:  "Reads a GitHub webhook payload from --file (or stdin with -) and prints the canonical event it maps to.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		eventType, _ := cmd.Flags().GetString("event")
		file, _ := cmd.Flags().GetString("file")
		output, _ := cmd.Flags().GetString("output")
		if output != "json" && output != "yaml" {
			return fmt.Errorf("invalid --output %q (expected json|yaml)", output)
		}

		var (
			payload []byte
			err     error
		)
		if file == "-" {
			payload, err = io.ReadAll(cmd.InOrStdin())
		} else {
			payload, err = os.ReadFile(file)
		}
		if err != nil {
			return errs.Wrap(err, "read payload")
		}

		match, ok, err := event.Classify(eventType, payload, time.Now())
		if err != nil {
			return errs.Wrap(err, "classify payload")
		}
		out := cmd.OutOrStdout()
		if !ok {
			_, err := fmt.Fprintln(out, "not actionable")
			return err
		}

		result := classifyResult{Rule: match.Rule, Event: ports.StoredEvent{Event: match.Event}}
		if output == "yaml" {
			return writeYAML(out, result)
		}
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	},
}

type classifyResult struct {
	Rule  string            `json:"rule"`
	Event ports.StoredEvent `json:"event"`
}

// writeYAML renders v through its JSON form so field names and order match
// the json output.
func writeYAML(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errs.Wrap(err, "encode result")
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return errs.Wrap(err, "convert result to yaml")
	}
	blockStyle(&doc)

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return errs.Wrap(err, "write yaml")
	}
	return encoder.Close()
}

func blockStyle(node *yaml.Node) {
	node.Style = 0
	for _, child := range node.Content {
		blockStyle(child)
	}
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().String("event", "", "GitHub event type (X-GitHub-Event)")
	classifyCmd.Flags().String("file", "-", "Payload file, - for stdin")
	classifyCmd.Flags().String("output", "json", "Output format: json|yaml")
	_ = classifyCmd.MarkFlagRequired("event")
}
