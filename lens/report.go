package lens

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-analyze/charts"
)

const reportTableMaxRecords = 10

// chart color constants
var greenTextColor = charts.ColorGreenAlt3
var orangeTextColor = charts.ColorOrangeAlt1.WithAdjustHSL(0, .2, 0)
var redTextColor = charts.ColorRed.WithAdjustHSL(0, .1, -.1)

// chartOutputType selects the chart format from the file extension.
func chartOutputType(path string) (string, error) {
	if strings.HasSuffix(path, ".png") {
		return charts.ChartOutputPNG, nil
	} else if strings.HasSuffix(path, ".jpg") || strings.HasSuffix(path, ".jpeg") {
		return charts.ChartOutputJPG, nil
	} else if strings.HasSuffix(path, ".svg") {
		return charts.ChartOutputSVG, nil
	}
	return "", fmt.Errorf("unhandled chart file type: %s", path)
}

// WriteStatsChart renders the session overview chart to path, the format follows the extension. An
// empty path is ignored.
func WriteStatsChart(path string, snap StatsSnapshot) error {
	if path == "" {
		return nil
	}
	outputType, err := chartOutputType(path)
	if err != nil {
		return err
	}
	if buf, err := RenderStatsChart(snap, outputType); err != nil {
		return fmt.Errorf("render charts failed: %w", err)
	} else if err = os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("write chart file failed: %w", err)
	}
	return nil
}

// RenderStatsChart renders the packets per kind and the busiest processes of a session.
func RenderStatsChart(snap StatsSnapshot, outputType string) ([]byte, error) {
	painterOpt := charts.PainterOptions{
		OutputFormat: outputType,
		Width:        1024,
		Height:       768,
	}
	p := charts.NewPainter(painterOpt)
	if chartBox, err := renderStatsToPainter(p, snap); err != nil {
		return nil, err
	} else if chartBox.Height() < p.Height()-128 || chartBox.Height() > p.Height() {
		// re-render with a smaller painter to better fit the charts
		painterOpt.Height = max(chartBox.Height(), 256)
		p = charts.NewPainter(painterOpt)
		if _, err := renderStatsToPainter(p, snap); err != nil {
			return nil, err
		}
	}
	return p.Bytes()
}

func renderStatsToPainter(p *charts.Painter, snap StatsSnapshot) (charts.Box, error) {
	const chartPadding = 10
	resultBox := charts.NewBoxEqual(0)
	resultBox.Right = p.Width()
	p.FilledRect(0, 0, p.Width(), p.Height(), charts.ColorWhite, charts.ColorWhite, 0)
	p = p.Child(charts.PainterPaddingOption(charts.NewBox(0, chartPadding, chartPadding, chartPadding)))

	titleFont := charts.FontStyle{
		FontSize:  16,
		FontColor: charts.ColorBlack,
		Font:      charts.GetDefaultFont(),
	}
	title := "Session " + snap.Started.Format(time.DateTime) + " (" +
		(time.Duration(snap.DurationMs) * time.Millisecond).Round(time.Second).String() + ")"
	titleBox := p.MeasureText(title, 0, titleFont)
	// title rendered after the charts to ensure it does not get clipped
	resultBox.Bottom += titleBox.Height()

	kinds := PacketKinds()
	labels := make([]string, len(kinds))
	values := make([]float64, len(kinds))
	var maxCount uint64
	for i, k := range kinds {
		labels[i] = k.String()
		values[i] = float64(snap.Packets[k.String()])
		maxCount = max(maxCount, snap.Packets[k.String()])
	}
	barHeight := 18
	topHeight := (barHeight+8)*len(kinds) + 80

	painters, err := p.LayoutByRows().
		RowGap(strconv.Itoa(titleBox.Height())).
		Row().Height(strconv.Itoa(topHeight)).Columns("top").
		Row().Columns("bottom"). // single large painter at the bottom with all remaining space
		Build()
	if err != nil {
		return resultBox, fmt.Errorf("error building chart layout: %w", err)
	}
	top := painters["top"]
	bottom := painters["bottom"]

	topOpt := charts.NewHorizontalBarChartOptionWithData([][]float64{values})
	topOpt.Theme = charts.GetTheme(charts.ThemeLight).WithBackgroundColor(charts.ColorTransparent)
	topOpt.Title.Text = "Packets by Kind"
	topOpt.XAxis.Unit = axisUnitForMax(int(maxCount))
	topOpt.YAxis.Labels = labels
	topOpt.BarHeight = barHeight
	topOpt.SeriesList[0].Label.Show = charts.Ptr(true)
	topOpt.SeriesList[0].Label.ValueFormatter = func(f float64) string {
		total := float64(snap.TotalPackets())
		if total == 0 || f == 0 {
			return ""
		}
		return charts.FormatValueHumanize(f, 0, false) + " (" + charts.FormatValueHumanize(100.0*f/total, 1, false) + "%)"
	}
	if err := top.HorizontalBarChart(topOpt); err != nil {
		return resultBox, fmt.Errorf("error rendering chart: %w", err)
	}
	resultBox.Bottom += top.Height()

	pids := snap.ProcessIDs()
	if len(pids) == 0 {
		text := "No Packets Received"
		textBox := bottom.MeasureText(text, 0, titleFont)
		bottom.Text(text, (bottom.Width()-textBox.Width())/2, bottom.Height()/2, 0, titleFont)
		resultBox.Bottom += textBox.Height() * 2
	} else {
		if len(pids) > reportTableMaxRecords {
			pids = pids[:reportTableMaxRecords]
		}
		total := float64(snap.TotalPackets())
		rows := make([][]string, len(pids))
		for i, pid := range pids {
			count := snap.Processes[pid]
			rows[i] = []string{
				strconv.Itoa(pid),
				strconv.FormatUint(count, 10),
				charts.FormatValueHumanize(100.0*float64(count)/total, 1, false) + "%",
			}
		}
		tableTitle := "Processes"
		tableTitleFont := charts.FontStyle{
			FontSize:  12,
			FontColor: topOpt.Theme.GetTitleTextColor(),
			Font:      charts.GetDefaultFont(),
		}
		tableTitleBox := bottom.MeasureText(tableTitle, 0, tableTitleFont)
		bottom.Text(tableTitle, 10, tableTitleBox.Height(), 0, tableTitleFont)
		rowColors := []charts.Color{
			{R: 240, G: 240, B: 240, A: 255},
			charts.ColorTransparent,
		}
		if len(rows)%2 == 0 {
			// reverse row colors so table end is opposite of transparent
			rowColors[0], rowColors[1] = rowColors[1], rowColors[0]
		}
		defaultCellFontStyle := charts.FontStyle{
			FontSize:  12,
			FontColor: charts.Color{R: 50, G: 50, B: 50, A: 255},
			Font:      charts.GetDefaultFont(),
		}
		bottomOpt := charts.TableChartOption{
			Header:                []string{"Process", "Packets", "Share"},
			Data:                  rows,
			HeaderBackgroundColor: charts.Color{R: 210, G: 210, B: 210, A: 255},
			RowBackgroundColors:   rowColors,
			Padding:               charts.NewBoxEqual(10),
			Spans:                 []int{12, 8, 8},
			TextAligns:            []string{charts.AlignLeft, charts.AlignRight, charts.AlignRight},
			CellModifier: func(cell charts.TableCell) charts.TableCell {
				if cell.Row == 0 {
					return cell
				}
				cell.FontStyle = defaultCellFontStyle // reset on each call to prevent prior changes persisting
				if cell.Column == 2 {
					if share, err := strconv.ParseFloat(strings.TrimSuffix(cell.Text, "%"), 64); err == nil {
						cell.FontStyle.FontColor = shareColor(share)
					}
				}
				return cell
			},
		}
		tablePainter := bottom.Child(charts.PainterPaddingOption(charts.NewBox(10, tableTitleBox.Height()+8, 0, 0)))
		if err := tablePainter.TableChart(bottomOpt); err != nil {
			return resultBox, fmt.Errorf("error rendering table: %w", err)
		}
		// re-render just so we can calculate the height of the table, currently charts does not return the table sizes
		bottomOpt.Width = bottom.Width()
		if p, _ := charts.TableOptionRenderDirect(bottomOpt); p != nil {
			resultBox.Bottom += tableTitleBox.Height() + p.Height()
		} else {
			resultBox.Bottom += bottom.Height()
		}
	}

	if snap.DecodeErrors > 0 {
		errText := strconv.FormatUint(snap.DecodeErrors, 10) + " malformed frames"
		errFont := titleFont
		errFont.FontSize = 10
		errFont.FontColor = redTextColor
		errBox := p.MeasureText(errText, 0, errFont)
		p.Text(errText, p.Width()-errBox.Width(), titleBox.Height(), 0, errFont)
	}
	p.Text(title, (p.Width()/2)-(titleBox.Width()/2), titleBox.Height(), 0, titleFont)
	return resultBox, nil
}

// shareColor highlights processes dominating the session.
func shareColor(share float64) charts.Color {
	if share >= 80 {
		return redTextColor
	} else if share >= 50 {
		return orangeTextColor
	}
	return greenTextColor
}

func axisUnitForMax(val int) float64 {
	if val >= 8000 {
		return 2000
	} else if val > 2000 {
		return 1000
	} else if val >= 800 {
		return 200
	} else if val > 200 {
		return 100
	} else if val >= 80 {
		return 20
	} else if val > 20 {
		return 10
	} else if val >= 10 {
		return 2
	} else {
		return 1
	}
}
