package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PatchLens/go-dump-lens/lens"
)

func TestParseArgs(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		cfg, err := ParseArgs(nil, nil)
		require.NoError(t, err)

		assert.Equal(t, lens.DefaultHost, cfg.Host)
		assert.Equal(t, lens.DefaultPort, cfg.Port)
		assert.True(t, cfg.Color)
		assert.False(t, cfg.Replay)
		assert.Equal(t, lens.DefaultBudget(), cfg.Formatter.Budget)
		assert.Equal(t, lens.EscapePlain, cfg.Formatter.Escaping)
		assert.Empty(t, cfg.CustomFlags)
	})

	t.Run("collector", func(t *testing.T) {
		dir := t.TempDir()
		cfg, err := ParseArgs([]string{"-p", "9000", "--storage", dir, "--session", "s1",
			"--stats", "stats.json", "--report", "report.svg", "--color=false", "--maxlines", "20"}, nil)
		require.NoError(t, err)

		assert.Equal(t, 9000, cfg.Port)
		assert.Equal(t, dir, cfg.StorageDir)
		assert.Equal(t, "s1", cfg.Session)
		assert.Equal(t, "stats.json", cfg.StatsFile)
		assert.Equal(t, "report.svg", cfg.ReportFile)
		assert.False(t, cfg.Color)
		assert.Equal(t, 20, cfg.MaxLines)
	})

	t.Run("formatter", func(t *testing.T) {
		cfg, err := ParseArgs([]string{"--depth", "2", "--strlen", "64", "--trace", "0", "-w", "100",
			"--escape", "JSON", "--json", "pretty", "--order", "alphabetic", "--tz", "UTC",
			"--hide", "pin,cvv", "--heuristics=false"}, nil)
		require.NoError(t, err)

		f := cfg.Formatter
		assert.Equal(t, 2, f.MaxDepth)
		assert.Equal(t, 64, f.MaxStringLength)
		assert.Equal(t, 0, f.TraceLength)
		assert.Equal(t, 100, f.Width)
		assert.Equal(t, lens.EscapeJSON, f.Escaping)
		assert.Equal(t, lens.JSONPretty, f.JSONMode)
		assert.Equal(t, lens.FieldOrderAlphabetic, f.FieldOrder)
		assert.Equal(t, "UTC", f.Timezone.String())
		assert.Equal(t, []string{"pin", "cvv"}, f.HiddenFields)
		assert.False(t, f.Heuristics)
	})

	t.Run("custom_flags", func(t *testing.T) {
		custom := []CustomFlag{
			{Name: "team", DefaultValue: "core", Usage: "team name", Type: "string"},
			{Name: "shards", DefaultValue: 1, Usage: "shard count", Type: "int"},
			{Name: "verbose", DefaultValue: false, Usage: "verbose output", Type: "bool"},
		}
		cfg, err := ParseArgs([]string{"--shards", "4", "--verbose"}, custom)
		require.NoError(t, err)

		assert.Equal(t, map[string]string{"team": "core", "shards": "4", "verbose": "true"}, cfg.CustomFlags)
	})

	errorCases := []struct {
		name string
		args []string
	}{
		{"unknown_flag", []string{"--nope"}},
		{"bad_escape", []string{"--escape", "ebcdic"}},
		{"bad_json_mode", []string{"--json", "yaml"}},
		{"bad_timezone", []string{"--tz", "Mars/Olympus"}},
		{"bad_port", []string{"--port", "70000"}},
		{"zero_depth", []string{"--depth", "0"}},
		{"replay_without_storage", []string{"--replay"}},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseArgs(tc.args, nil)
			assert.Error(t, err)
		})
	}

	t.Run("unsupported_custom_type", func(t *testing.T) {
		_, err := ParseArgs(nil, []CustomFlag{{Name: "ratio", DefaultValue: 1.5, Type: "float"}})
		assert.Error(t, err)
	})
}
