package render

// View is the presentation state of one detection response. It holds plain
// data only, view layers bind it to HTML, JSON or images.
type View struct {
	ResultId      string       `json:"resultId,omitempty"`
	Status        Status       `json:"status"`
	Visualization string       `json:"visualization,omitempty"`
	Geometry      Geometry     `json:"geometry"`
	Overlay       []OverlayBox `json:"overlay"`
	Chart         *ChartView   `json:"chart,omitempty"`
	SeverityChart *ChartView   `json:"severityChart,omitempty"`

	Recommendations         []string `json:"recommendations,omitempty"`
	AnalysisRecommendations []string `json:"analysisRecommendations,omitempty"`

	Report *ReportView `json:"report,omitempty"`
}

type Status struct {
	DiseaseDetected   bool   `json:"diseaseDetected"`
	DetectionText     string `json:"detectionText"`
	DetectionColor    string `json:"detectionColor"`
	DiseaseType       string `json:"diseaseType"`
	ConfidencePercent int    `json:"confidencePercent"`
	ConfidenceText    string `json:"confidenceText"`
	Severity          string `json:"severity"`
	RiskLevel         string `json:"riskLevel,omitempty"`
	RiskLabel         string `json:"riskLabel,omitempty"`
	PrimaryCategory   string `json:"primaryCategory"`
	PrimaryColor      string `json:"primaryColor"`
	Mode              string `json:"mode"`
	Offline           bool   `json:"offline"`
}

// OverlayBox is positioned in displayed-image coordinates.
type OverlayBox struct {
	Index       int     `json:"index"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	Category    string  `json:"category"`
	Label       string  `json:"label"`
	AreaLabel   string  `json:"areaLabel,omitempty"`
	Color       string  `json:"color"`
	Fill        string  `json:"fill"`
	Observation bool    `json:"observation"`
}

type Bar struct {
	Label         string  `json:"label"`
	Value         float64 `json:"value"`
	ValueText     string  `json:"valueText"`
	Color         string  `json:"color"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	Width         float64 `json:"width"`
	Height        float64 `json:"height"`
	LabelX        float64 `json:"labelX"`
	LabelY        float64 `json:"labelY"`
	LabelRotation float64 `json:"labelRotation"`
}

type Tick struct {
	Y     float64 `json:"y"`
	Value float64 `json:"value"`
	Label string  `json:"label"`
}

type LegendItem struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

type ChartView struct {
	Title    string       `json:"title"`
	Width    float64      `json:"width"`
	Height   float64      `json:"height"`
	Padding  float64      `json:"padding"`
	MaxValue float64      `json:"maxValue"`
	Derived  bool         `json:"derived"`
	Bars     []Bar        `json:"bars"`
	YTicks   []Tick       `json:"yTicks"`
	Legend   []LegendItem `json:"legend,omitempty"`
}

type ReportView struct {
	Text              string `json:"text,omitempty"`
	Detection         string `json:"detection"`
	DetectionColor    string `json:"detectionColor"`
	ConfidencePercent int    `json:"confidencePercent"`
	Severity          string `json:"severity"`
	Area              string `json:"area,omitempty"`
	Invasion          string `json:"invasion,omitempty"`
	Conclusion        string `json:"conclusion,omitempty"`
	Downloadable      bool   `json:"downloadable"`
}

type BatchRow struct {
	Filename          string `json:"filename"`
	Success           bool   `json:"success"`
	DiseaseType       string `json:"diseaseType,omitempty"`
	ConfidencePercent int    `json:"confidencePercent"`
	StatusText        string `json:"statusText"`
	Error             string `json:"error,omitempty"`
}

type BatchView struct {
	Title        string     `json:"title"`
	SuccessCount int        `json:"successCount"`
	FailedCount  int        `json:"failedCount"`
	Rows         []BatchRow `json:"rows"`
}
