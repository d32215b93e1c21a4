package fixture

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v2"

	"mingmou/internal/dao"
)

const (
	SchemaVersion = 2
	DefaultSet    = "oral"

	colorSurgery     = "#ff4444"
	colorObservation = "#44ff44"
)

//go:embed fixtures.yaml
var embedded []byte

var ErrUnknownSet = errors.New("unknown fixture set")

type Report struct {
	Invasion        string   `yaml:"invasion" json:"invasion,omitempty" jsonschema:"description=Invasion length of the lesion"`
	Severity        string   `yaml:"severity" json:"severity,omitempty"`
	Diagnosis       string   `yaml:"diagnosis" json:"diagnosis,omitempty"`
	Recommendations []string `yaml:"recommendations" json:"recommendations,omitempty"`
}

type Entry struct {
	Name              string  `yaml:"name" json:"name" jsonschema:"required,description=Demo image file name used as lookup key"`
	Description       string  `yaml:"description" json:"description,omitempty"`
	ServerPath        string  `yaml:"serverPath" json:"serverPath,omitempty" jsonschema:"description=Path of the image on the detection server"`
	Label             string  `yaml:"label" json:"label" jsonschema:"required,enum=手术,enum=观察"`
	Confidence        float64 `yaml:"confidence" json:"confidence" jsonschema:"required,minimum=0,maximum=1"`
	Severity          string  `yaml:"severity" json:"severity,omitempty"`
	Visualization     string  `yaml:"visualization" json:"visualization,omitempty"`
	SegmentationImage string  `yaml:"segmentationImage" json:"segmentationImage,omitempty"`
	RecognitionImage  string  `yaml:"recognitionImage" json:"recognitionImage,omitempty"`
	Report            *Report `yaml:"report" json:"report,omitempty"`
}

func (e *Entry) IsObservation() bool {
	return e.Label == dao.CategoryObservation
}

type ByCategory struct {
	Surgery     []string `yaml:"surgery" json:"surgery"`
	Observation []string `yaml:"observation" json:"observation"`
}

func (b ByCategory) pick(observation bool) []string {
	if observation {
		return append([]string(nil), b.Observation...)
	}
	return append([]string(nil), b.Surgery...)
}

type Set struct {
	Name                    string     `yaml:"name" json:"name" jsonschema:"required"`
	DiseaseType             string     `yaml:"diseaseType" json:"diseaseType"`
	Site                    string     `yaml:"site" json:"site,omitempty"`
	DetectionType           string     `yaml:"detectionType" json:"detectionType,omitempty"`
	Model                   string     `yaml:"model" json:"model,omitempty"`
	Recommendations         ByCategory `yaml:"recommendations" json:"recommendations"`
	AnalysisRecommendations ByCategory `yaml:"analysisRecommendations" json:"analysisRecommendations"`
	Entries                 []Entry    `yaml:"entries" json:"entries"`
}

// File is the versioned on-disk form of the fixture tables.
type File struct {
	Version int   `yaml:"version" json:"version" jsonschema:"required,minimum=2,maximum=2"`
	Sets    []Set `yaml:"sets" json:"sets" jsonschema:"required"`
}

func Parse(data []byte) (*File, error) {
	f := &File{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	if f.Version != SchemaVersion {
		return nil, fmt.Errorf("fixture schema version %d, expected %d", f.Version, SchemaVersion)
	}
	for _, s := range f.Sets {
		for _, e := range s.Entries {
			if e.Confidence < 0 || e.Confidence > 1 {
				return nil, fmt.Errorf("fixture %s/%s: confidence %v out of range", s.Name, e.Name, e.Confidence)
			}
		}
	}
	return f, nil
}

// Store is the static name -> canned result table of one fixture set.
type Store struct {
	set   *Set
	index map[string]*Entry
}

// Load reads filename, or the embedded tables when filename is empty.
func Load(filename, set string) (*Store, error) {
	data := embedded
	if filename != "" {
		var err error
		if data, err = os.ReadFile(filename); err != nil {
			return nil, fmt.Errorf("read fixtures: %w", err)
		}
	}
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return New(f, set)
}

func New(f *File, set string) (*Store, error) {
	if set == "" {
		set = DefaultSet
	}
	for i := range f.Sets {
		if f.Sets[i].Name != set {
			continue
		}
		s := &Store{set: &f.Sets[i], index: make(map[string]*Entry)}
		for j := range s.set.Entries {
			e := &s.set.Entries[j]
			s.index[e.Name] = e
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSet, set)
}

func (s *Store) SetName() string {
	return s.set.Name
}

func (s *Store) List() []Entry {
	return append([]Entry(nil), s.set.Entries...)
}

// Entry returns the fixture registered for name, matching on the base name.
func (s *Store) Entry(name string) *Entry {
	if name == "" {
		return nil
	}
	return s.index[path.Base(strings.ReplaceAll(name, "\\", "/"))]
}

// Has reports whether name is a recognized demo image.
func (s *Store) Has(name string) bool {
	return s.Entry(name) != nil
}

// SurgeryObservation splits a single confidence into the two class
// confidences, which always sum to 1.
func SurgeryObservation(label string, conf float64) (surgery, observation float64) {
	if label == dao.CategoryObservation {
		surgery = 1 - conf
	} else {
		surgery = conf
	}
	return surgery, 1 - surgery
}

// Lookup builds a fresh offline response for name, nil when not registered.
func (s *Store) Lookup(name string) *dao.DetectionResponse {
	e := s.Entry(name)
	if e == nil {
		return nil
	}
	obs := e.IsObservation()

	classId, riskLevel := dao.ClassSurgery, "high"
	surgeryCount, observationCount := 1, 0
	if obs {
		classId, riskLevel = dao.ClassObservation, "medium"
		surgeryCount, observationCount = 0, 1
	}

	recs := s.set.Recommendations.pick(obs)
	if e.Report != nil && len(e.Report.Recommendations) > 0 {
		recs = append([]string(nil), e.Report.Recommendations...)
	}

	surgery, observation := SurgeryObservation(e.Label, e.Confidence)

	det := &dao.DetectionResult{
		DiseaseDetected:  true,
		DiseaseType:      s.set.DiseaseType,
		Confidence:       e.Confidence,
		Severity:         e.Severity,
		TotalInstances:   1,
		SurgeryCount:     surgeryCount,
		ObservationCount: observationCount,
		BoundingBoxes: []dao.BoundingBox{{
			ClassId:    classId,
			Label:      e.Label,
			Category:   e.Label,
			Confidence: e.Confidence,
			Bbox:       []float64{100, 100, 200, 200},
		}},
		Recommendations: recs,
		Analysis: &dao.Analysis{
			RiskLevel:       riskLevel,
			Recommendations: s.set.AnalysisRecommendations.pick(obs),
		},
	}
	if e.Report != nil {
		det.ReportText = s.reportText(e)
	}

	return &dao.DetectionResponse{
		Success:       true,
		Mode:          dao.ModeOffline,
		Visualization: e.Visualization,
		Detection:     det,
		ChartData: &dao.ChartData{
			Labels:      []string{dao.CategorySurgery, dao.CategoryObservation},
			Confidences: []float64{surgery * 100, observation * 100},
			Colors:      []string{colorSurgery, colorObservation},
		},
	}
}

func (s *Store) reportText(e *Entry) string {
	var b strings.Builder
	b.WriteString("病理检测报告\n")
	b.WriteString("====================\n")
	if s.set.DetectionType != "" {
		fmt.Fprintf(&b, "检测类型: %s\n", s.set.DetectionType)
	}
	if s.set.Site != "" {
		fmt.Fprintf(&b, "检查部位: %s\n", s.set.Site)
	}
	if s.set.Model != "" {
		fmt.Fprintf(&b, "检测模型: %s\n", s.set.Model)
	}
	fmt.Fprintf(&b, "检测图像: %s\n", e.Name)
	b.WriteString("病变检测: 阳性\n")
	fmt.Fprintf(&b, "病变类型: %s\n", s.set.DiseaseType)
	fmt.Fprintf(&b, "置信度: %.1f%%\n", e.Confidence*100)
	if e.Report.Invasion != "" {
		fmt.Fprintf(&b, "侵犯范围: %s\n", e.Report.Invasion)
	}
	if e.Report.Severity != "" {
		fmt.Fprintf(&b, "严重程度: %s\n", e.Report.Severity)
	}
	if e.Report.Diagnosis != "" {
		fmt.Fprintf(&b, "\n诊断意见:\n%s\n", e.Report.Diagnosis)
	}
	if len(e.Report.Recommendations) > 0 {
		b.WriteString("\n建议:\n")
		for i, rec := range e.Report.Recommendations {
			fmt.Fprintf(&b, "%d. %s\n", i+1, rec)
		}
	}
	return b.String()
}

var reflector = jsonschema.Reflector{
	AllowAdditionalProperties: false,
	DoNotReference:            true,
}

// Schema returns the JSON schema of the fixture file.
func Schema() ([]byte, error) {
	schema := reflector.Reflect(&File{})
	return json.MarshalIndent(schema, "", "  ")
}
