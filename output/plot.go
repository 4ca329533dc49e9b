package output

import (
	"fmt"
	"os"

	"github.com/ChristianF88/mtrip/median"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

// PlotLayerStats creates an interactive chart of the DP's progression across
// cardinality layers: the best score reached in each layer and the number of
// maximizing splits recorded (tie pressure).
func PlotLayerStats(stats []median.LayerStat, filename string) error {
	if len(stats) == 0 {
		return fmt.Errorf("no layer statistics to plot")
	}

	var layers []int
	var scores []opts.LineData
	var ties []opts.LineData
	for _, st := range stats {
		layers = append(layers, st.K)
		scores = append(scores, opts.LineData{Value: st.BestScore})
		ties = append(ties, opts.LineData{Value: st.Ties})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithLegendOpts(opts.Legend{
			Show: opts.Bool(true),
			Top:  "5%",
		}),
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:       "mtrip DP Layers",
			Width:           "120vh",
			Height:          "80vh",
			Theme:           types.ThemeVintage,
			BackgroundColor: "transparent",
		}),
		charts.WithTitleOpts(opts.Title{
			Title: "Triplet score and tie count per cardinality layer",
			Left:  "center",
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Trigger: "axis",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Name: "Layer cardinality k",
			Type: "category",
			Data: layers,
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name: "Count",
			Type: "value",
		}),
	)

	line.SetXAxis(layers).
		AddSeries("Best layer score", scores).
		AddSeries("Maximizing splits", ties)

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(line)

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("could not create plot file %s: %w", filename, err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("rendering layer plot: %w", err)
	}

	fmt.Printf("Layer plot saved to %s\n", filename)
	return nil
}
