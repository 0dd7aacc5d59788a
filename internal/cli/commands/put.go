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
	"io"
	"os"

	"github.com/spf13/cobra"
)

var putCmd = &cobra.Command{
	Use:   "put <virtual-path> [host-file]",
	Short: "Write a host file (or stdin) to a virtual path",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data []byte
		var err error
		if len(args) == 2 {
			data, err = os.ReadFile(args[1])
		} else {
			data, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return err
		}

		v, err := openVolume()
		if err != nil {
			return err
		}
		defer v.Shutdown()

		f, err := v.Create(args[0])
		if err != nil {
			return err
		}
		if f == nil {
			return fmt.Errorf("cannot create %s: path is busy or lies directly under the root", args[0])
		}
		defer v.Close(f)

		n, err := v.Write(f, data)
		if err != nil {
			return err
		}
		fmt.Printf("Wrote %d bytes to %s\n", n, f.Path())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(putCmd)
}
