package schema

// EngineConfig holds the static theme and layout parameters handed to the
// render capability's initializer.
type EngineConfig struct {
	Theme       string  `json:"theme" yaml:"theme"`
	FontFamily  string  `json:"font_family" yaml:"font_family"`
	FontSize    float64 `json:"font_size" yaml:"font_size"`
	Direction   string  `json:"direction" yaml:"direction"`
	Curve       string  `json:"curve" yaml:"curve"`
	NodeSpacing int     `json:"node_spacing" yaml:"node_spacing"`
	RankSpacing int     `json:"rank_spacing" yaml:"rank_spacing"`

	Background         string `json:"background" yaml:"background"`
	PrimaryColor       string `json:"primary_color" yaml:"primary_color"`
	PrimaryTextColor   string `json:"primary_text_color" yaml:"primary_text_color"`
	PrimaryBorderColor string `json:"primary_border_color" yaml:"primary_border_color"`
	SecondaryColor     string `json:"secondary_color" yaml:"secondary_color"`
	SecondaryTextColor string `json:"secondary_text_color" yaml:"secondary_text_color"`
	LineColor          string `json:"line_color" yaml:"line_color"`
	NoteColor          string `json:"note_color" yaml:"note_color"`
}

// Themes accepted by EngineConfig.Theme.
var Themes = []string{"dark", "base", "default", "forest", "neutral"}

// DefaultEngineConfig returns the dashboard's dark theme.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Theme:       "dark",
		FontFamily:  "Inter, sans-serif",
		FontSize:    14,
		Direction:   "TD",
		Curve:       "basis",
		NodeSpacing: 50,
		RankSpacing: 50,

		Background:         "#1c1917",
		PrimaryColor:       "#fbbf24",
		PrimaryTextColor:   "#1f2937",
		PrimaryBorderColor: "#f59e0b",
		SecondaryColor:     "#374151",
		SecondaryTextColor: "#f9fafb",
		LineColor:          "#d6d3d1",
		NoteColor:          "#fbbf24",
	}
}

// IsDark reports whether the theme renders light text on a dark canvas.
func (c EngineConfig) IsDark() bool {
	return c.Theme == "dark"
}
