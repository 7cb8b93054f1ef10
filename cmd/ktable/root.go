package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/thetarby/ktable"
	"github.com/thetarby/ktable/config"
)

var (
	// Set up by the persistent prerun hook of rootCmd.
	singletons = struct {
		Config *config.Config
	}{}

	configFile string
	verbose    bool

	rootCmd = &cobra.Command{
		Use:          "ktable",
		Short:        "Exercise the kernel semaphore and file tables",
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentPreRunE = rootPersistentPreRunE

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", `config file`)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, `log table activity`)
}

func rootPersistentPreRunE(cmd *cobra.Command, args []string) error {
	for _, f := range []func() error{
		initLogging,
		initConfig,
	} {
		if err := f(); err != nil {
			return err
		}
	}
	return nil
}

func initLogging() error {
	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	return nil
}

func initConfig() (err error) {
	singletons.Config, err = config.Load(configFile)
	return
}

func newTables(log ktable.Transactor) *ktable.Tables {
	return ktable.New(log, singletons.Config.Options())
}
