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
	"os"

	"github.com/spf13/cobra"
)

var catCmd = &cobra.Command{
	Use:   "cat <virtual-path>",
	Short: "Stream a virtual file to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVolume()
		if err != nil {
			return err
		}
		defer v.Shutdown()

		f, err := v.Open(args[0])
		if err != nil {
			return err
		}
		if f == nil {
			return fmt.Errorf("%s: not found or held by a writer", args[0])
		}
		defer v.Close(f)

		out := make([]byte, f.Len())
		n, err := v.Read(f, out)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out[:n])
		return err
	},
}

func init() {
	rootCmd.AddCommand(catCmd)
}
