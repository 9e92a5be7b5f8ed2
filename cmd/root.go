// Package cmd implements the avsync command line
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/njyeung/avsync/config"
	"github.com/njyeung/avsync/log"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// fs backs the config and log files
var fs = afero.NewOsFs()

func init() {
	rootCmd.PersistentFlags().Bool("log", false, "Write logs to the log directory")
	lo.Must0(viper.BindPFlag(config.LogWrite, rootCmd.PersistentFlags().Lookup("log")))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level: panic, fatal, error, warn, info, debug or trace")
	lo.Must0(rootCmd.RegisterFlagCompletionFunc("log-level", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return lo.Map(logrus.AllLevels, func(l logrus.Level, _ int) string { return l.String() }), cobra.ShellCompDirectiveDefault
	}))
	lo.Must0(viper.BindPFlag(config.LogLevel, rootCmd.PersistentFlags().Lookup("log-level")))
}

var rootCmd = &cobra.Command{
	Use:           config.Name,
	Short:         "Play and record media in the terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		dir, err := config.Dir()
		if err != nil {
			return err
		}
		if err := config.Setup(fs, dir); err != nil {
			return err
		}
		_, err = log.Setup(fs, log.Dir(dir))
		return err
	},
}

// Execute runs the command line until it completes or is interrupted
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	stop()
	handleErr(err)
}

func handleErr(err error) {
	if err != nil {
		log.Logger().Error(err)
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", strings.Trim(err.Error(), " \n"))
		os.Exit(1)
	}
}
