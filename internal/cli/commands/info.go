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

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show volume statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVolume()
		if err != nil {
			return err
		}
		defer v.Shutdown()

		fmt.Printf("Virtual files: %d\n", v.NumFiles())
		fmt.Println("Backing files:")
		for _, info := range v.BackingFiles() {
			fmt.Printf("  %s  %d bytes\n", info.Path, info.Size)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
