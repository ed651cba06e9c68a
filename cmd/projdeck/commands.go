package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/kalambet/projdeck/internal/catalog"
	"github.com/kalambet/projdeck/internal/config"
	"github.com/kalambet/projdeck/internal/launcher"
)

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	Long: `List projects, optionally narrowed by language and search text.

The search text is matched case-insensitively against name and description.
Pass --language "" to list projects without a language.

Examples:
  projdeck list
  projdeck list --language Go --search api
  projdeck list --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		search, _ := cmd.Flags().GetString("search")
		asJSON, _ := cmd.Flags().GetBool("json")

		return withApp(func(a *app) error {
			if cmd.Flags().Changed("language") {
				lang, _ := cmd.Flags().GetString("language")
				a.vm.SetLanguageFilter(catalog.OnlyLanguage(lang))
			}
			a.vm.SetSearchQuery(search)
			projects := a.vm.Display()

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(projects)
			}

			if f := a.vm.Filter(); !f.IsAll() {
				printStatus("Language", "%s", f)
			}
			if len(projects) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No projects found.")
				return nil
			}
			return renderProjects(cmd.OutOrStdout(), projects)
		})
	},
}

// renderProjects writes the catalog table. Styling follows the writer's
// terminal and is dropped entirely with --no-color.
func renderProjects(w io.Writer, projects []catalog.Snapshot) error {
	re := lipgloss.NewRenderer(w)
	cell := re.NewStyle().Padding(0, 1)
	header := cell.Bold(!noColor)

	rows := make([][]string, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, []string{
			strconv.FormatInt(p.ID, 10),
			truncate(p.Name, 30),
			languageLabel(p.Language),
			truncate(p.Status, 16),
			p.LastInteractionDisplay,
			p.FolderPath,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(re.NewStyle().Faint(!noColor)).
		Headers("ID", "NAME", "LANGUAGE", "STATUS", "LAST USED", "FOLDER").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func init() {
	listCmd.Flags().String("language", "", "show only this language")
	listCmd.Flags().String("search", "", "filter by name or description")
	listCmd.Flags().Bool("json", false, "print JSON instead of a table")
}

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List the languages used in the catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			for _, lang := range a.vm.Languages() {
				fmt.Fprintln(cmd.OutOrStdout(), languageLabel(lang))
			}
			return nil
		})
	},
}

// --- add / set / rm ---

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a project",
	Long: `Add a project. Omitted fields keep their placeholder values.

Examples:
  projdeck add
  projdeck add --name deck --folder ~/src/deck --language Go`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fields := map[string]string{}
		for flag, field := range addFlagFields {
			if cmd.Flags().Changed(flag) {
				v, _ := cmd.Flags().GetString(flag)
				if field == catalog.FieldFolderPath && v != "" {
					if abs, err := filepath.Abs(v); err == nil {
						v = abs
					}
				}
				fields[string(field)] = v
			}
		}

		return withApp(func(a *app) error {
			snap, err := a.vm.AddWith(fields)
			if err != nil {
				return err
			}
			printSuccess("Added project %d (%s)", snap.ID, snap.Name)
			fmt.Fprintln(cmd.OutOrStdout(), snap.ID)
			return nil
		})
	},
}

var addFlagFields = map[string]catalog.Field{
	"name":        catalog.FieldName,
	"description": catalog.FieldDescription,
	"status":      catalog.FieldStatus,
	"folder":      catalog.FieldFolderPath,
	"language":    catalog.FieldLanguage,
}

func init() {
	addCmd.Flags().String("name", "", "project name")
	addCmd.Flags().String("description", "", "short description")
	addCmd.Flags().String("status", "", "free-form status")
	addCmd.Flags().String("folder", "", "project folder path")
	addCmd.Flags().String("language", "", "primary language")
}

var setCmd = &cobra.Command{
	Use:   "set <id> <field> <value>",
	Short: "Set one field of a project",
	Long: `Set one field of a project. The change is saved immediately.

Fields: name, description, status, folder_path, language`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		field, value := args[1], args[2]
		if field == string(catalog.FieldFolderPath) && value != "" {
			if abs, err := filepath.Abs(value); err == nil {
				value = abs
			}
		}

		return withApp(func(a *app) error {
			if _, err := a.vm.SetFields(id, map[string]string{field: value}); err != nil {
				return err
			}
			printSuccess("Set %s = %s", field, value)
			return nil
		})
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"remove"},
	Short:   "Remove a project from the catalog",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			if err := a.vm.Remove(id); err != nil {
				return err
			}
			printSuccess("Removed project %d", id)
			return nil
		})
	},
}

// --- launch ---

func newLaunchCmd(use, short, done string, action func(*catalog.ViewModel, int64) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(func(a *app) error {
				if err := action(a.vm, id); err != nil {
					return err
				}
				printSuccess("%s for project %d", done, id)
				return nil
			})
		},
	}
}

var (
	openCmd = newLaunchCmd("open", "Open the project folder in the file manager", "Opened folder", (*catalog.ViewModel).OpenFolder)
	editCmd = newLaunchCmd("edit", "Open the project folder in a code editor", "Opened editor", (*catalog.ViewModel).OpenInEditor)
	runCmd  = newLaunchCmd("run", "Start the project's run script", "Started script", (*catalog.ViewModel).RunScript)
)

// --- save ---

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Write the whole catalog back to storage",
	Long: `Write the whole catalog back to storage in one step.

Single edits are already saved as they happen; save rewrites every record and
may renumber project ids.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if err := a.vm.SaveAll(); err != nil {
				return err
			}
			printSuccess("Saved %d projects", len(a.vm.Projects()))
			return nil
		})
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s  %s\n",
				colorize(colorBold, k.Key), k.Value, colorize(colorDim, "($"+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: fmt.Sprintf(`Set a configuration value in the config file.

Keys: %v`, config.ValidKeys()),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.FilePath()
		fmt.Fprintln(cmd.OutOrStdout(), path)

		open, _ := cmd.Flags().GetBool("open")
		if !open {
			return nil
		}
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating config dir: %w", err)
		}
		return launcher.New().OpenFolder(dir)
	},
}

func init() {
	configPathCmd.Flags().Bool("open", false, "open the config folder in the file manager")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
