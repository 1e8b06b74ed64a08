package lens

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-analyze/charts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot(processes int) StatsSnapshot {
	snap := StatsSnapshot{
		Started:    time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		DurationMs: 90_000,
		Packets:    map[string]uint64{},
		Bytes:      map[string]uint64{},
		Processes:  map[int]uint64{},
	}
	for i := 0; i < processes; i++ {
		count := uint64(processes - i)
		snap.Processes[1000+i] = count
		snap.Packets[PacketDump.String()] += count
	}
	if processes > 0 {
		snap.Packets[PacketError.String()] = 2
		snap.Processes[1000] += 2
	}
	return snap
}

func TestChartOutputType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path   string
		expect string
	}{
		{"report.png", charts.ChartOutputPNG},
		{"out/report.jpg", charts.ChartOutputJPG},
		{"report.jpeg", charts.ChartOutputJPG},
		{"report.svg", charts.ChartOutputSVG},
	}
	for _, tt := range tests {
		outputType, err := chartOutputType(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.expect, outputType)
	}

	_, err := chartOutputType("report.pdf")
	assert.Error(t, err)
}

func TestRenderStatsChart(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		snap StatsSnapshot
	}{
		{"empty", sampleSnapshot(0)},
		{"single_process", sampleSnapshot(1)},
		{"many_processes", sampleSnapshot(reportTableMaxRecords + 5)},
		{"decode_errors", func() StatsSnapshot {
			s := sampleSnapshot(3)
			s.DecodeErrors = 4
			return s
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svg, err := RenderStatsChart(tt.snap, charts.ChartOutputSVG)
			require.NoError(t, err)
			assert.Contains(t, string(svg), "<svg")
			assert.Contains(t, string(svg), "Packets by Kind")
			assert.Contains(t, string(svg), "Session 2024-01-15 10:30:00 (1m30s)")

			png, err := RenderStatsChart(tt.snap, charts.ChartOutputPNG)
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
		})
	}

	t.Run("content", func(t *testing.T) {
		snap := sampleSnapshot(2)
		snap.DecodeErrors = 1
		svg, err := RenderStatsChart(snap, charts.ChartOutputSVG)
		require.NoError(t, err)
		assert.Contains(t, string(svg), "Processes")
		assert.Contains(t, string(svg), "1000")
		assert.Contains(t, string(svg), "1 malformed frames")
		assert.NotContains(t, string(svg), "No Packets Received")

		svg, err = RenderStatsChart(sampleSnapshot(0), charts.ChartOutputSVG)
		require.NoError(t, err)
		assert.Contains(t, string(svg), "No Packets Received")
	})
}

func TestWriteStatsChart(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	assert.NoError(t, WriteStatsChart("", sampleSnapshot(1)))
	assert.Error(t, WriteStatsChart(filepath.Join(dir, "report.txt"), sampleSnapshot(1)))

	path := filepath.Join(dir, "report.png")
	require.NoError(t, WriteStatsChart(path, sampleSnapshot(3)))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))
}

func TestShareColor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, redTextColor, shareColor(95))
	assert.Equal(t, redTextColor, shareColor(80))
	assert.Equal(t, orangeTextColor, shareColor(50))
	assert.Equal(t, greenTextColor, shareColor(49.9))
}

func TestAxisUnitForMax(t *testing.T) {
	t.Parallel()

	tests := map[int]float64{
		0:     1,
		9:     1,
		10:    2,
		21:    10,
		80:    20,
		201:   100,
		800:   200,
		2001:  1000,
		8000:  2000,
		50000: 2000,
	}
	for val, expect := range tests {
		assert.Equal(t, expect, axisUnitForMax(val), "max %d", val)
	}
}
