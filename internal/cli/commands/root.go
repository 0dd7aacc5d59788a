// Copyright 2025 PageFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commands

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pagefs/internal/config"
	"pagefs/internal/vfs"
)

var (
	version = "dev"

	configPath string
	verbosity  int
)

// SetVersion sets the version info for --version
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

var rootCmd = &cobra.Command{
	Use:   "pagefs",
	Short: "Paged virtual filesystem over a bounded set of backing files",
	Long: `pagefs packs virtual files and directories into a small, fixed set of
host backing files using a page-addressed on-disk format with chained pages.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		switch {
		case verbosity >= 2:
			log.SetLevel(log.TraceLevel)
		case verbosity == 1:
			log.SetLevel(log.DebugLevel)
		default:
			log.SetLevel(log.WarnLevel)
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultFileName, "volume settings file")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (-v debug, -vv trace)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// openVolume loads the settings file and constructs the VFS over it.
func openVolume() (*vfs.VFS, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return vfs.New(cfg.BackingFiles, cfg.Root)
}
