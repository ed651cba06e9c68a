package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/projdeck/internal/storage"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// formatFor picks the explicit format, else guesses from the file extension.
func formatFor(explicit, path string) (string, error) {
	switch strings.ToLower(explicit) {
	case formatJSON:
		return formatJSON, nil
	case formatYAML, "yml":
		return formatYAML, nil
	case "":
	default:
		return "", fmt.Errorf("unknown format %q (want json or yaml)", explicit)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML, nil
	default:
		return formatJSON, nil
	}
}

func encodeProjects(w io.Writer, format string, projects []storage.Project) error {
	if projects == nil {
		projects = []storage.Project{}
	}
	if format == formatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(projects); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(projects)
}

// decodeProjects reads a project list and drops any ids; the store assigns new ones.
func decodeProjects(r io.Reader, format string) ([]storage.Project, error) {
	var projects []storage.Project
	var err error
	if format == formatYAML {
		err = yaml.NewDecoder(r).Decode(&projects)
		if err == io.EOF {
			err = nil
		}
	} else {
		err = json.NewDecoder(r).Decode(&projects)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", format, err)
	}
	for i := range projects {
		projects[i].ID = 0
	}
	return projects, nil
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the catalog as JSON or YAML",
	Long: `Export every project, ignoring any filter.

Examples:
  projdeck export > projects.json
  projdeck export --format yaml --output projects.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		explicit, _ := cmd.Flags().GetString("format")
		format, err := formatFor(explicit, output)
		if err != nil {
			return err
		}

		return withApp(func(a *app) error {
			snaps := a.vm.Projects()
			records := make([]storage.Project, len(snaps))
			for i, s := range snaps {
				records[i] = s.Project
			}

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating output file: %w", err)
				}
				defer f.Close()
				w = f
			}
			if err := encodeProjects(w, format, records); err != nil {
				return err
			}
			if output != "" {
				printSuccess("Exported %d projects to %s", len(records), output)
			}
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the catalog with projects from a JSON or YAML file",
	Long: `Replace the whole catalog with the projects in file. Ids in the file are
ignored and reassigned. This discards every current project.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will replace ALL projects. Use --confirm to proceed.")
			return nil
		}
		explicit, _ := cmd.Flags().GetString("format")
		format, err := formatFor(explicit, args[0])
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening import file: %w", err)
		}
		defer f.Close()
		projects, err := decodeProjects(f, format)
		if err != nil {
			return err
		}

		return withApp(func(a *app) error {
			printStep("Replacing catalog with %d projects...", len(projects))
			if err := a.vm.ReplaceWith(projects); err != nil {
				return err
			}
			printSuccess("Imported %d projects", len(projects))
			return nil
		})
	},
}

func init() {
	exportCmd.Flags().String("output", "", "output file path (default: stdout)")
	exportCmd.Flags().String("format", "", "json or yaml (default: from --output extension, else json)")
	importCmd.Flags().String("format", "", "json or yaml (default: from file extension)")
	importCmd.Flags().Bool("confirm", false, "confirm replacing the catalog")
}
