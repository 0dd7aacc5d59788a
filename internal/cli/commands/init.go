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
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"pagefs/internal/config"
	"pagefs/internal/vfs"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Create a volume settings file and lay out its backing files",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}

		cfg := config.Default(dir)
		v, err := vfs.New(cfg.BackingFiles, cfg.Root)
		if err != nil {
			return err
		}
		defer v.Shutdown()

		path := filepath.Join(dir, config.DefaultFileName)
		if err := cfg.Save(path); err != nil {
			return err
		}

		fmt.Printf("Initialized volume: %d backing files under %s\n", len(cfg.BackingFiles), dir)
		fmt.Printf("Settings written to %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
