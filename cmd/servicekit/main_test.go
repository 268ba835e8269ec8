package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kronos-Integration/service-sub000/builtin"
	"github.com/Kronos-Integration/service-sub000/config"
	"github.com/Kronos-Integration/service-sub000/lifecycle"
)

func TestParseFlags_LayersAndDebug(t *testing.T) {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	cfg, err := parseFlags(fs, []string{"-config", "base.yaml", "-c", "local.yaml", "-debug", "-log-format", "text"})
	require.NoError(t, err)
	assert.Equal(t, []string{"base.yaml", "local.yaml"}, cfg.ConfigPaths)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestValidateFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servicekit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("services: {}\n"), 0o600))

	valid := CLIConfig{ConfigPaths: []string{path}, LogLevel: "info", LogFormat: "json", ShutdownTimeout: time.Second}
	require.NoError(t, validateFlags(&valid))

	tests := []struct {
		name   string
		mutate func(*CLIConfig)
	}{
		{"missing file", func(c *CLIConfig) { c.ConfigPaths = []string{filepath.Join(t.TempDir(), "absent.yaml")} }},
		{"log level", func(c *CLIConfig) { c.LogLevel = "verbose" }},
		{"log format", func(c *CLIConfig) { c.LogFormat = "xml" }},
		{"shutdown timeout", func(c *CLIConfig) { c.ShutdownTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, validateFlags(&cfg))
		})
	}
}

func TestRuntime_StartServeShutdown(t *testing.T) {
	autostart := true
	cfg := &config.Config{
		Admin: config.AdminConfig{HTTPAddr: "127.0.0.1:0"},
		Services: map[string]config.ServiceConfig{
			"clock": {
				Type:       builtin.TickerType,
				Autostart:  &autostart,
				Attributes: map[string]any{"interval": "10ms"},
				Endpoints: map[string]config.EndpointDefinition{
					"out": {Connect: "service(counter).in"},
				},
			},
			"counter": {Type: builtin.SinkType, Autostart: &autostart},
		},
	}

	rt, err := newRuntime(cfg, setupLogger(io.Discard, "info", "json"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, rt.start(ctx, cfg, nil))
	assert.Equal(t, lifecycle.StateRunning, rt.provider.State())

	counter, ok := rt.provider.Service("counter")
	require.True(t, ok)
	sink := counter.(*builtin.Sink)
	assert.Eventually(t, func() bool { return sink.Received() > 0 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + rt.http.Addr() + "/services")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Result []map[string]any `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Result, 2)

	metricsResp, err := http.Get("http://" + rt.http.Addr() + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()

	parser := expfmt.TextParser{}
	families, err := parser.TextToMetricFamilies(metricsResp.Body)
	require.NoError(t, err)
	received, ok := families["servicekit_sink_received_total"]
	require.True(t, ok, "sink counter exported")
	assert.Equal(t, dto.MetricType_COUNTER, received.GetType())
	require.Len(t, received.GetMetric(), 1)
	assert.Positive(t, received.GetMetric()[0].GetCounter().GetValue())

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, rt.shutdown(shutdownCtx))
	assert.Equal(t, lifecycle.StateStopped, rt.provider.State())
	assert.Equal(t, lifecycle.StateStopped, counter.State())
}
