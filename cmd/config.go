package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/njyeung/avsync/config"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	keyStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	descStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configPathCmd)

	configInitCmd.Flags().BoolP("force", "f", false, "Overwrite an existing config file")
	configShowCmd.Flags().BoolP("env", "e", false, "Print the environment variable of each key")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the current settings to the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := config.Dir()
		if err != nil {
			return err
		}
		path, err := config.Write(fs, dir, lo.Must(cmd.Flags().GetBool("force")))
		if err != nil {
			return err
		}
		cmd.Println(path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show [key]...",
	Short: "Print the settings in effect",
	RunE: func(cmd *cobra.Command, args []string) error {
		fields := config.Fields
		if len(args) > 0 {
			for _, k := range args {
				if _, ok := config.Default[k]; !ok {
					return fmt.Errorf("unknown key %q", k)
				}
			}
			fields = lo.Filter(fields, func(f config.Field, _ int) bool { return lo.Contains(args, f.Key) })
		}
		env := lo.Must(cmd.Flags().GetBool("env"))
		for _, f := range fields {
			cmd.Println(descStyle.Render("# " + f.Description))
			line := fmt.Sprintf("%s = %v", keyStyle.Render(f.Key), viper.Get(f.Key))
			if env {
				line += descStyle.Render(fmt.Sprintf("  (%s)", f.Env()))
			}
			cmd.Println(line)
		}
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := config.Dir()
		if err != nil {
			return err
		}
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			cmd.Println(dir + " (missing)")
			return nil
		}
		cmd.Println(dir)
		return nil
	},
}
