package cmd

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/corey/linecheck/internal/adapters/tcp"
	"github.com/spf13/cobra"
)

var (
	queryAddr     string
	queryTLS      bool
	queryInsecure bool
	queryTimeout  time.Duration
)

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Send one query to a running server",
	Long: `Sends the text followed by the terminator byte and prints the reply.
Multiple arguments are joined with single spaces. The address defaults to the
configured host and port.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	f := queryCmd.Flags()
	f.StringVar(&queryAddr, "addr", "", "Server address host:port (default from config)")
	f.BoolVar(&queryTLS, "tls", false, "Connect with TLS (default from config ssl_enabled)")
	f.BoolVar(&queryInsecure, "insecure", false, "Skip TLS certificate verification")
	f.DurationVar(&queryTimeout, "timeout", tcp.DefaultClientTimeout, "Overall query timeout")
}

func runQuery(cmd *cobra.Command, args []string) error {
	addr := queryAddr
	useTLS := queryTLS
	if addr == "" || !cmd.Flags().Changed("tls") {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if addr == "" {
			addr = cfg.Addr()
		}
		if !cmd.Flags().Changed("tls") {
			useTLS = cfg.SSLEnabled
		}
	}

	var tlsCfg *tls.Config
	if useTLS {
		tlsCfg = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: queryInsecure, //nolint:gosec // opt-in for self-signed test certificates
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
	defer cancel()

	resp, err := tcp.NewClient(addr, tlsCfg).Query(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), formatResponse(resp))
	return nil
}
