package cli

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auditor",
		Short: "Audit and fix ArcGIS Online item metadata",
		Long: `Auditor keeps hosted feature services in line with the SGID reference tables.

It compares each item's title, tags, group, folder, description note,
thumbnail, delete protection, export capability, and content status against
what the reference tables say, reports the drift, and pushes the fixes back
through the portal API unless told not to.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./auditor.yaml)")

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newAuditCmd())
	cmd.AddCommand(newScheduledCmd())
	cmd.AddCommand(newMetatableCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))

	return cmd
}

func initConfig() {
	godotenv.Load() // a local .env is optional

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("auditor")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.auditor")
	}

	viper.SetEnvPrefix("AUDITOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.ReadInConfig() // Ignore error - config file is checked when commands load it
}
