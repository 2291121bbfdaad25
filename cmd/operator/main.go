// Copyright 2018 The Cactuar Authors
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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/common/version"
	"golang.org/x/sync/errgroup"
	"k8s.io/client-go/tools/clientcmd"
	_ "k8s.io/component-base/metrics/prometheus/workqueue" // Registers the workqueue metrics provider.
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"github.com/cactuar-rs/cactuar/pkg/alert"
	cactuarv1 "github.com/cactuar-rs/cactuar/pkg/apis/cactuar/v1"
	"github.com/cactuar-rs/cactuar/pkg/client"
	"github.com/cactuar-rs/cactuar/pkg/manifests"
	"github.com/cactuar-rs/cactuar/pkg/server"
)

const programName = "cactuar"

func loadConfig(path string) (*manifests.Config, error) {
	if path == "" {
		return manifests.NewDefaultConfig(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open config file: %w", err)
	}
	defer f.Close()

	c, err := manifests.NewConfig(f)
	if err != nil {
		return nil, fmt.Errorf("could not parse config file %s: %w", path, err)
	}
	return c, nil
}

// overrideConfig applies the flags set on the command line on top of the
// configuration file.
func overrideConfig(cfg *manifests.Config, flagset *flag.FlagSet, address *string, port, workers *int) error {
	flagset.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http-address":
			cfg.HTTP.Address = *address
		case "http-port":
			cfg.HTTP.Port = *port
		case "workers":
			cfg.Controller.Workers = *workers
		}
	})
	return cfg.Validate()
}

func Main() int {
	flagset := flag.CommandLine
	klog.InitFlags(flagset)
	configPath := flagset.String("config", "", "Path to the configuration file. Defaults apply when unset.")
	kubeconfigPath := flagset.String("kubeconfig", "", "The path to the kubeconfig to connect to the apiserver with.")
	apiserver := flagset.String("apiserver", "", "The address of the apiserver to talk to.")
	httpAddress := flagset.String("http-address", "", "Address the HTTP server listens on. Overrides http.address.")
	httpPort := flagset.Int("http-port", 0, "Port the HTTP server listens on. Overrides http.port.")
	workers := flagset.Int("workers", 0, "Number of ServiceAlerts reconciled concurrently. Overrides controller.workers.")
	printVersion := flagset.Bool("version", false, "Print version information and exit.")
	flag.Parse()

	if *printVersion {
		fmt.Println(version.Print(programName))
		return 0
	}

	klog.InfoS("Starting "+programName, "version", version.Info(), "build", version.BuildContext())

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := overrideConfig(cfg, flagset, httpAddress, httpPort, workers); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	r := prometheus.NewRegistry()
	r.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		versioncollector.NewCollector(programName),
	)

	config, err := clientcmd.BuildConfigFromFlags(*apiserver, *kubeconfigPath)
	if err != nil {
		fmt.Fprint(os.Stderr, err)
		return 1
	}

	// Every reconciliation issues a few patches, the client-go defaults
	// throttle large clusters at startup.
	config.QPS = 100
	config.Burst = 200
	config.UserAgent = programName + "/" + version.Version

	c, err := client.New(config)
	if err != nil {
		fmt.Fprint(os.Stderr, err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Controller.InstallCRD {
		crd := cactuarv1.NewCustomResourceDefinition()
		if err := c.ApplyCRD(ctx, crd); err != nil {
			klog.ErrorS(err, "Installing CRD failed")
			return 1
		}
		if err := c.WaitForCRDReady(ctx, crd); err != nil {
			klog.ErrorS(err, "Waiting for CRD failed", "crd", crd.Name)
			return 1
		}
		klog.InfoS("CRD installed", "crd", crd.Name)
	}

	ctrl, err := alert.NewController(c, cfg.Controller, c.NewEventRecorder(ctx), clock.RealClock{})
	if err != nil {
		fmt.Fprint(os.Stderr, err)
		return 1
	}

	srv := server.NewServer(cfg.HTTP, r, ctrl.HasSynced)

	wg, gctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		ctrl.Run(gctx, cfg.Controller.Workers)
		return nil
	})
	wg.Go(func() error { return srv.Run(gctx) })

	term := make(chan os.Signal, 1)
	signal.Notify(term, os.Interrupt, syscall.SIGTERM)

	select {
	case <-term:
		klog.V(4).Info("Received SIGTERM, exiting gracefully...")
	case <-gctx.Done():
	}

	cancel()
	if err := wg.Wait(); err != nil {
		klog.ErrorS(err, "Unhandled error received. Exiting...")
		return 1
	}

	return 0
}

func main() {
	os.Exit(Main())
}
