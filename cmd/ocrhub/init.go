package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/azadk/ocrhub/internal/config"
	"github.com/azadk/ocrhub/internal/home"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default config file",
	Long: `Write a default config file.

With no arguments this sets up the ocrhub home directory (~/.ocrhub)
with its data and staging subdirectories and writes the default config
there. With a path argument only that config file is written.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var path string
		if len(args) == 1 {
			path = args[0]
		} else {
			dir, err := home.New("")
			if err != nil {
				return err
			}
			if err := dir.EnsureExists(); err != nil {
				return err
			}
			path = dir.ConfigPath()
		}

		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Printf("Wrote default config to %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}
