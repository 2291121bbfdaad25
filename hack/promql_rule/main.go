// Copyright 2021 The Cactuar Authors
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

// promql_rule prints the metrics selected by the rules generated for a
// ServiceAlert manifest. It is used to check that the scraped targets expose
// everything the alerts depend on.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	cactuarv1 "github.com/cactuar-rs/cactuar/pkg/apis/cactuar/v1"
	"github.com/cactuar-rs/cactuar/pkg/rules"
)

func metricNames(r io.Reader) ([]string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var sa cactuarv1.ServiceAlert
	if err := yaml.UnmarshalStrict(content, &sa); err != nil {
		return nil, errors.Wrap(err, "decoding ServiceAlert")
	}

	doc, err := rules.Compile(&sa.Spec)
	if err != nil {
		return nil, err
	}

	return doc.MetricNames()
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: promql_rule <servicealert.yaml>")
		os.Exit(2)
	}

	f, err := os.Open(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer f.Close()

	names, err := metricNames(f)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	for _, name := range names {
		fmt.Println(name)
	}
}
