package backtest

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorEquity        = "#3b82f6"
	colorBalance       = "#fbbf24"
	colorDrawdown      = "#f87171"
	colorBuyMark       = "#34d399"
	colorSellMark      = "#f472b6"

	chartWidthPx   = 1400
	equityHeightPx = 520
	drawdownHeight = 260
)

// RenderReport 把一次回测结果渲染为可在浏览器打开的 HTML 报告：
// 资金曲线（含成交标记）+ 回撤曲线。
func RenderReport(w io.Writer, run Run) error {
	if run.Result == nil {
		return fmt.Errorf("任务 %s 尚无结果可渲染", run.ID)
	}
	result := run.Result
	if len(result.Equity) == 0 {
		return fmt.Errorf("任务 %s 无资金曲线数据", run.ID)
	}

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)

	xAxis := buildReportXAxis(result.Equity)
	page.AddCharts(
		buildEquityChart(run, xAxis),
		buildDrawdownChart(run, xAxis),
	)
	return page.Render(w)
}

func buildReportXAxis(equity []EquityPoint) []string {
	x := make([]string, len(equity))
	for i, p := range equity {
		x[i] = time.UnixMilli(p.TS).UTC().Format("2006-01-02 15:04")
	}
	return x
}

func buildEquityChart(run Run, xAxis []string) *charts.Line {
	result := run.Result
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", equityHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("%s · %s", strings.ToUpper(run.Config.Symbol), run.Config.StrategyID),
			Subtitle: fmt.Sprintf("收益 %.2f%% | 胜率 %.1f%% | 最大回撤 %.2f%% | 夏普 %.2f | 成交 %d 笔",
				result.TotalReturnPct, result.WinRate, result.MaxDrawdownPct, result.SharpeRatio, result.TotalTrades),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)

	equityData := make([]opts.LineData, len(result.Equity))
	balanceData := make([]opts.LineData, len(result.Equity))
	for i, p := range result.Equity {
		equityData[i] = opts.LineData{Value: roundTo(p.Equity, 2)}
		balanceData[i] = opts.LineData{Value: roundTo(p.Balance, 2)}
	}
	line.SetXAxis(xAxis)
	line.AddSeries("净值", equityData,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithMarkPointNameCoordItemOpts(buildTradeMarks(result)...),
	)
	line.AddSeries("现金", balanceData,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorBalance, Width: 1}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	return line
}

// buildTradeMarks 把每笔成交标到资金曲线对应的时间点上。
func buildTradeMarks(result *Result) []opts.MarkPointNameCoordItem {
	indexByTS := make(map[int64]int, len(result.Equity))
	for i, p := range result.Equity {
		indexByTS[p.TS] = i
	}
	marks := make([]opts.MarkPointNameCoordItem, 0, len(result.Trades))
	for _, tr := range result.Trades {
		i, ok := indexByTS[tr.Timestamp]
		if !ok {
			continue
		}
		color := colorBuyMark
		label := "B"
		if tr.Side == "sell" {
			color = colorSellMark
			label = "S"
		}
		marks = append(marks, opts.MarkPointNameCoordItem{
			Name:       label,
			Coordinate: []interface{}{i, roundTo(result.Equity[i].Equity, 2)},
			Label:      &opts.Label{Show: opts.Bool(true), Color: colorTextPrimary, Formatter: label},
			ItemStyle:  &opts.ItemStyle{Color: color},
		})
	}
	return marks
}

func buildDrawdownChart(run Run, xAxis []string) *charts.Line {
	result := run.Result
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", drawdownHeight),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      "回撤 (%)",
			Left:       "left",
			TitleStyle: &opts.TextStyle{Color: colorTextPrimary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	data := make([]opts.LineData, len(result.Equity))
	for i, p := range result.Equity {
		data[i] = opts.LineData{Value: roundTo(p.Drawdown, 3)}
	}
	line.SetXAxis(xAxis)
	line.AddSeries("Drawdown", data,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorDrawdown, Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithAreaStyleOpts(opts.AreaStyle{Color: colorDrawdown, Opacity: opts.Float(0.25)}),
	)
	return line
}

func roundTo(val float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}
