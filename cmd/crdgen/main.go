// Copyright 2025 The Cactuar Authors
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

// Command crdgen prints the ServiceAlert CustomResourceDefinition.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	cactuarv1 "github.com/cactuar-rs/cactuar/pkg/apis/cactuar/v1"
)

func render(w io.Writer, format string) error {
	crd := cactuarv1.NewCustomResourceDefinition()

	var (
		out []byte
		err error
	)
	switch format {
	case "yaml":
		out, err = yaml.Marshal(crd)
	case "json":
		out, err = json.MarshalIndent(crd, "", "  ")
		out = append(out, '\n')
	default:
		return fmt.Errorf("unknown output format %q, expected yaml or json", format)
	}
	if err != nil {
		return err
	}

	_, err = w.Write(out)
	return err
}

func newCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:          "crdgen",
		Short:        "Print the ServiceAlert CustomResourceDefinition",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return render(cmd.OutOrStdout(), format)
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "yaml", "Output format, yaml or json.")

	return cmd
}

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
