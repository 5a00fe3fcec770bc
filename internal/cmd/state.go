package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/taskloop/taskloop/internal/statefile"
)

var (
	stateFilePath string
	stateSetJSON  bool
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Read and write pipeline JSON documents",
	Long: `State exposes the JSON document accessor for external tooling:
field reads by dot-separated path, atomic field writes, deep merge of
multiple documents, and syntactic validation.`,
}

var stateGetCmd = &cobra.Command{
	Use:   "get <field-path>",
	Short: "Print a field value from a JSON document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := statefile.Get(statePath(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, value)
	},
}

var stateSetCmd = &cobra.Command{
	Use:   "set <field-path> <value>",
	Short: "Set a field value, atomically replacing the document",
	Long: `Set writes one field by dot-separated path. The value is stored as a
string unless --json is given, in which case it is parsed as a JSON
literal (number, bool, null, object, array). A missing document is
created.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fieldPath, raw := args[0], args[1]

		if !stateSetJSON {
			return statefile.Set(statePath(), statefile.SetString(fieldPath, raw))
		}

		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return fmt.Errorf("invalid JSON value: %w", err)
		}
		return statefile.Set(statePath(), statefile.SetValue(fieldPath, value))
	},
}

var stateMergeCmd = &cobra.Command{
	Use:   "merge <path>...",
	Short: "Deep-merge JSON documents and print the result",
	Long: `Merge combines the documents at the given paths, later documents'
keys overriding earlier ones, and prints the merged result. Missing
files are skipped; at least one document must exist.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		merged, err := statefile.Merge(args...)
		if err != nil {
			return err
		}
		return printJSON(cmd, merged)
	},
}

var stateValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Check that a document exists and is valid JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := statePath()
		if len(args) == 1 {
			path = args[0]
		}
		ok := statefile.Validate(path)
		fmt.Fprintln(cmd.OutOrStdout(), strconv.FormatBool(ok))
		if !ok {
			return fmt.Errorf("%s is not a valid JSON document", path)
		}
		return nil
	},
}

// statePath resolves the target document: --file if given, else the
// pipeline state document under the project root.
func statePath() string {
	if stateFilePath != "" {
		return stateFilePath
	}
	root := viper.GetString("dir")
	if root == "" {
		root = "."
	}
	return filepath.Join(root, ".task", "state.json")
}

func printJSON(cmd *cobra.Command, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func init() {
	stateCmd.PersistentFlags().StringVar(&stateFilePath, "file", "", "target document (default .task/state.json)")
	stateSetCmd.Flags().BoolVar(&stateSetJSON, "json", false, "parse the value as a JSON literal")
	stateCmd.AddCommand(stateGetCmd, stateSetCmd, stateMergeCmd, stateValidateCmd)
	rootCmd.AddCommand(stateCmd)
}
