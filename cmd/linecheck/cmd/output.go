package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/corey/linecheck/internal/adapters/tcp"
	"github.com/corey/linecheck/internal/app"
	"github.com/corey/linecheck/internal/config"
)

// ANSI color codes for terminal output.
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// formatResponse returns the reply line unchanged so scripts can compare it
// against the protocol literals.
func formatResponse(resp tcp.Response) string {
	if resp == "" {
		return "(no reply)\n"
	}
	return string(resp)
}

func printError(err error) {
	fmt.Fprintf(os.Stderr, "%serror:%s %v\n", colorRed, colorReset, err)
}

func onOff(b bool) string {
	if b {
		return colorGreen + "on" + colorReset
	}
	return colorGray + "off" + colorReset
}

func orNone(d fmt.Stringer, zero bool) string {
	if zero {
		return colorGray + "none" + colorReset
	}
	return d.String()
}

// writeConfigText renders the configuration for a terminal.
//
//	linecheck config
//	  Source:      ./config.json
//	  Listen:      127.0.0.1:12345 (TLS off)
//	  Target:      data.txt
//	  Strategy:    snapshot (match=exact, reread_on_query=false)
func writeConfigText(w io.Writer, source string, cfg *config.Config, res app.Resolution) {
	fmt.Fprintf(w, "%slinecheck config%s\n", colorBold, colorReset)
	fmt.Fprintf(w, "  Source:      %s\n", source)
	fmt.Fprintf(w, "  Listen:      %s (TLS %s)\n", cfg.Addr(), onOff(cfg.SSLEnabled))
	if cfg.SSLEnabled {
		fmt.Fprintf(w, "  Cert/Key:    %s / %s\n", cfg.CertFile, cfg.KeyFile)
	}
	fmt.Fprintf(w, "  Target:      %s\n", cfg.FilePath)
	fmt.Fprintf(w, "  Strategy:    %s (match=%s, reread_on_query=%t)\n", res.Kind, cfg.Match, cfg.RereadOnQuery)
	if res.FlagIgnored {
		fmt.Fprintf(w, "               %sreread_on_query=false is ignored, this mode reads the file per query%s\n", colorYellow, colorReset)
	}
	if cfg.Match == config.MatchIndexed {
		fmt.Fprintf(w, "  Index:       %s\n", cfg.ResolvedIndexPath())
	}
	fmt.Fprintf(w, "  Watch:       %s\n", onOff(cfg.WatchTarget))
	fmt.Fprintf(w, "  Max payload: %d bytes\n", cfg.MaxPayload)
	fmt.Fprintf(w, "  Max conns:   %d\n", cfg.MaxConnections)
	fmt.Fprintf(w, "  Read limit:  %s\n", orNone(cfg.ReadTimeout, cfg.ReadTimeout == 0))
	fmt.Fprintf(w, "  Grace:       %s\n", cfg.ShutdownGrace)
	if addr := cfg.StatusAddr(); addr != "" {
		fmt.Fprintf(w, "  Status:      http://%s/api/health\n", addr)
	} else {
		fmt.Fprintf(w, "  Status:      %s\n", onOff(false))
	}
	fmt.Fprintf(w, "  Log:         %s (%s)\n", cfg.Log.Level, cfg.Log.Format)
}

// configView is the JSON shape of the config command. Durations are
// rendered as strings so the output can be fed back as a config file.
type configView struct {
	Host           string           `json:"host"`
	Port           int              `json:"port"`
	SSLEnabled     bool             `json:"ssl_enabled"`
	CertFile       string           `json:"cert_file"`
	KeyFile        string           `json:"key_file"`
	FilePath       string           `json:"file_path"`
	MaxPayload     int              `json:"max_payload"`
	RereadOnQuery  bool             `json:"reread_on_query"`
	Match          string           `json:"match"`
	IndexPath      string           `json:"index_path"`
	WatchTarget    bool             `json:"watch_target"`
	MaxConnections int              `json:"max_connections"`
	PollInterval   string           `json:"poll_interval"`
	ShutdownGrace  string           `json:"shutdown_grace"`
	ReadTimeout    string           `json:"read_timeout"`
	StatusPort     int              `json:"status_port"`
	Log            config.LogConfig `json:"log"`
	Strategy       string           `json:"strategy"`
}

func writeConfigJSON(w io.Writer, cfg *config.Config, res app.Resolution) error {
	view := configView{
		Host:           cfg.Host,
		Port:           cfg.Port,
		SSLEnabled:     cfg.SSLEnabled,
		CertFile:       cfg.CertFile,
		KeyFile:        cfg.KeyFile,
		FilePath:       cfg.FilePath,
		MaxPayload:     cfg.MaxPayload,
		RereadOnQuery:  cfg.RereadOnQuery,
		Match:          cfg.Match,
		IndexPath:      cfg.IndexPath,
		WatchTarget:    cfg.WatchTarget,
		MaxConnections: cfg.MaxConnections,
		PollInterval:   cfg.PollInterval.String(),
		ShutdownGrace:  cfg.ShutdownGrace.String(),
		ReadTimeout:    cfg.ReadTimeout.String(),
		StatusPort:     cfg.StatusPort,
		Log:            cfg.Log,
		Strategy:       string(res.Kind),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}
