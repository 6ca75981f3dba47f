package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"chatbridge/internal/catalog"
	"chatbridge/internal/config"
	"chatbridge/internal/proxy"
	"chatbridge/internal/server"
	"chatbridge/internal/session"
	"chatbridge/internal/translator"
	"chatbridge/internal/upstream"
)

const (
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

var (
	cfgPath      string
	overridePort int
	verbose      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP proxy server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&cfgPath, "config", "", "path to YAML configuration file")
	serveCmd.Flags().IntVar(&overridePort, "port", 0, "override server port from configuration")
	serveCmd.Flags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	_ = serveCmd.MarkFlagRequired("config")

	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	if overridePort != 0 {
		if overridePort <= 0 || overridePort > 65535 {
			return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
		}
		cfg.Server.Port = overridePort
	}

	client, err := upstream.New(cfg.Upstream, newHTTPClient())
	if err != nil {
		return err
	}

	table := catalog.Default()
	resolver := session.NewResolver(session.NewStore(), client)
	tr := translator.New(table, resolver)
	px := proxy.New(tr, client)

	srv, err := server.New(cfg, px, table)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}

// newHTTPClient builds the shared upstream HTTP client. It carries no
// overall timeout: streaming completions run for as long as the upstream
// produces, so only transport-level deadlines apply here and bounded calls
// set their own context timeouts.
func newHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{Transport: transport}
}
