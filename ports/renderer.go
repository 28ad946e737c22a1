package ports

// FigureRenderer draws grouped distribution plots
type FigureRenderer interface {
	Render(figure Figure, path string) error
}

// ReportRenderer converts a markdown report to HTML
type ReportRenderer interface {
	RenderHTML(markdown []byte) []byte
}

// Figure is one box-and-strip plot: a box per (category, hue) pair with the
// raw points drawn over it
type Figure struct {
	Title      string
	YLabel     string
	Categories []string // x axis groups, in order
	Hues       []Hue    // boxes within each group, in order
	Series     []Series
	YTicks     Ticks
}

// Hue is a named color for one level of the inner grouping
type Hue struct {
	Name       string
	R, G, B, A uint8
}

// Series holds the observations of one (category, hue) cell
type Series struct {
	Category string
	Hue      string
	Values   []float64
}

// Ticks fixes the y axis range and tick spacing
type Ticks struct {
	Min, Max, Step float64
}
