// Package cli assembles the cobra command tree for the convergecast
// binary: "run" starts one real node over UDP, "simulate" drives a
// scripted multi-node simulation in-process.
package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCommand builds the convergecast command tree.
func NewRootCommand() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "convergecast",
		Short: "Multi-hop sensor-network data-collection protocol",
	}

	var configFile string
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file")

	root.AddCommand(newRunCommand(v, &configFile))
	root.AddCommand(newSimulateCommand(v, &configFile))
	return root
}
