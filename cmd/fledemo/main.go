/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command fledemo runs the client-side field-level encryption pipeline
// against one JSON document read from stdin, using a file-backed
// metadata source and an Azure Key Vault master-key backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vaultdoc/fle/internal/memstore"
	"github.com/vaultdoc/fle/internal/obslog"
	"github.com/vaultdoc/fle/pkg/fleconfig"
	"github.com/vaultdoc/fle/pkg/flemetrics"
	"github.com/vaultdoc/fle/pkg/keyvault"
	"github.com/vaultdoc/fle/pkg/masterkey"
	"github.com/vaultdoc/fle/pkg/policy"
	"github.com/vaultdoc/fle/pkg/processor"
	"github.com/vaultdoc/fle/pkg/settings"
)

type flags struct {
	metadataPath string
	container    string
	operation    string
	metricsAddr  string
	tenantID     string
	clientID     string
	certPath     string
}

func parseFlags() *flags {
	f := &flags{}
	flag.StringVar(&f.metadataPath, "metadata", "metadata.yaml", "Path to the container policy/key metadata YAML")
	flag.StringVar(&f.container, "container", "", "Container name to resolve the encryption policy for")
	flag.StringVar(&f.operation, "op", "encrypt", "encrypt or decrypt")
	flag.StringVar(&f.metricsAddr, "metrics-addr", ":9090", "Prometheus metrics address")
	flag.StringVar(&f.tenantID, "tenant-id", os.Getenv("AAD_TENANT_ID"), "AAD tenant ID for Azure Key Vault auth")
	flag.StringVar(&f.clientID, "client-id", os.Getenv("AAD_CLIENT_ID"), "AAD client ID for Azure Key Vault auth")
	flag.StringVar(&f.certPath, "cert-path", os.Getenv("AAD_CERT_PATH"), "Path to the PFX/PEM client certificate for Azure Key Vault auth")
	flag.Parse()
	return f
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	f := parseFlags()
	if f.container == "" {
		return fmt.Errorf("--container is required")
	}

	log, flush, err := obslog.NewLogger()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer flush()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics := flemetrics.New()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: f.metricsAddr, Handler: mux}
	go func() {
		log.Info("starting metrics server", "addr", f.metricsAddr)
		if srvErr := srv.ListenAndServe(); srvErr != nil && srvErr != http.ErrServerClosed {
			log.Error(srvErr, "metrics server error")
		}
	}()
	defer func() {
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		_ = srv.Shutdown(shutCtx)
	}()

	metadataSource, err := memstore.Load(f.metadataPath)
	if err != nil {
		return fmt.Errorf("loading metadata: %w", err)
	}

	opts := fleconfig.DefaultOptions()
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	cert, err := os.ReadFile(f.certPath)
	if err != nil {
		return fmt.Errorf("reading client certificate: %w", err)
	}

	kv := keyvault.New(keyvault.CredentialConfig{
		TenantID:         f.tenantID,
		ClientID:         f.clientID,
		Certificate:      cert,
		AADRetryInterval: opts.AADRetryInterval,
		AADRetryCount:    opts.AADRetryCount,
	},
		keyvault.WithAPIVersion(opts.APIVersion),
		keyvault.WithHTTPClient(&http.Client{Timeout: opts.HTTPTimeout}),
		keyvault.WithRequestObserver(metrics),
	)

	masterKeyStore, err := masterkey.New(policy.ProviderAzureKeyVault, masterkey.Backends{AzureKeyVault: kv})
	if err != nil {
		return fmt.Errorf("selecting master-key backend: %w", err)
	}

	proc := processor.New(f.container, metadataSource, masterKeyStore,
		settings.WithTTL(opts.SettingsTTL),
		settings.WithObserver(metrics),
	)

	var out io.Reader
	switch f.operation {
	case "encrypt":
		out, err = proc.Encrypt(ctx, os.Stdin)
	case "decrypt":
		out, err = proc.Decrypt(ctx, os.Stdin)
	default:
		return fmt.Errorf("unknown operation %q, must be encrypt or decrypt", f.operation)
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w", f.operation, err)
	}

	buf := make([]byte, 32*1024)
	for {
		n, readErr := out.Read(buf)
		if n > 0 {
			if _, writeErr := os.Stdout.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("writing output: %w", writeErr)
			}
		}
		if readErr != nil {
			break
		}
	}
	return nil
}
