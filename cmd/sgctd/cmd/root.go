package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sgctd",
	Short: "drive a distributed sparse grid combination technique run",
	Long:  `nada`,
}

// Execute runs the root command, exiting the process on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (none is read when unset)")
}

func addCmd(c *cobra.Command) {
	rootCmd.AddCommand(c)
}

// parseCmd binds cmd's own flags and the root's persistent flags into a
// fresh viper instance, reading cfgFile first if one was given — every
// subcommand in this tool gets its options this same way.
func parseCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		_ = v.ReadInConfig()
	}
	_ = v.BindPFlags(cmd.Flags())
	_ = v.BindPFlags(rootCmd.PersistentFlags())
	return v
}
