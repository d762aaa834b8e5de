// Package inference describes the expression parameters understood by the
// face reenactment engine and the clients that talk to it.
package inference

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidParams = errors.New("invalid parameters")

type ModelType string

const (
	ModelHuman  ModelType = "human"
	ModelAnimal ModelType = "animal"
)

type SampleParts string

const (
	PartsOnlyExpression SampleParts = "OnlyExpression"
	PartsOnlyRotation   SampleParts = "OnlyRotation"
	PartsOnlyMouth      SampleParts = "OnlyMouth"
	PartsOnlyEyes       SampleParts = "OnlyEyes"
	PartsAll            SampleParts = "All"
)

var (
	modelTypes  = []string{string(ModelHuman), string(ModelAnimal)}
	sampleParts = []string{
		string(PartsOnlyExpression), string(PartsOnlyRotation),
		string(PartsOnlyMouth), string(PartsOnlyEyes), string(PartsAll),
	}
)

// ParamDef describes one user-facing control. Numeric controls carry
// Min/Max/Step; choice controls carry Choices.
type ParamDef struct {
	Name    string   `json:"name"`
	Label   string   `json:"label"`
	Min     float64  `json:"min"`
	Max     float64  `json:"max"`
	Step    float64  `json:"step,omitempty"`
	Default any      `json:"default"`
	Choices []string `json:"choices,omitempty"`
	Info    string   `json:"info,omitempty"`
	Hidden  bool     `json:"hidden,omitempty"`
}

func (d ParamDef) numeric() bool {
	return d.Choices == nil
}

type ExpressionParams struct {
	ModelType   ModelType   `json:"model_type"`
	RotatePitch float64     `json:"rotate_pitch"`
	RotateYaw   float64     `json:"rotate_yaw"`
	RotateRoll  float64     `json:"rotate_roll"`
	Blink       float64     `json:"blink"`
	Eyebrow     float64     `json:"eyebrow"`
	Wink        float64     `json:"wink"`
	PupilX      float64     `json:"pupil_x"`
	PupilY      float64     `json:"pupil_y"`
	AAA         float64     `json:"aaa"`
	EEE         float64     `json:"eee"`
	WOO         float64     `json:"woo"`
	Smile       float64     `json:"smile"`
	SourceRatio float64     `json:"source_ratio"`
	SampleRatio float64     `json:"sample_ratio"`
	SampleParts SampleParts `json:"sample_parts"`
	CropFactor  float64     `json:"crop_factor"`
}

var expressionDefs = []ParamDef{
	{Name: "model_type", Label: "Model Type", Default: string(ModelHuman), Choices: modelTypes, Hidden: true},
	{Name: "rotate_pitch", Label: "Rotate Pitch", Min: -20, Max: 20, Step: 0.5, Default: 0.0},
	{Name: "rotate_yaw", Label: "Rotate Yaw", Min: -20, Max: 20, Step: 0.5, Default: 0.0},
	{Name: "rotate_roll", Label: "Rotate Roll", Min: -20, Max: 20, Step: 0.5, Default: 0.0},
	{Name: "blink", Label: "Blink", Min: -20, Max: 20, Step: 0.5, Default: 0.0, Info: "Value above 5 may appear distorted"},
	{Name: "eyebrow", Label: "Eyebrow", Min: -40, Max: 20, Step: 0.5, Default: 0.0},
	{Name: "wink", Label: "Wink", Min: 0, Max: 25, Step: 0.5, Default: 0.0},
	{Name: "pupil_x", Label: "Pupil X", Min: -20, Max: 20, Step: 0.5, Default: 0.0},
	{Name: "pupil_y", Label: "Pupil Y", Min: -20, Max: 20, Step: 0.5, Default: 0.0},
	{Name: "aaa", Label: "AAA", Min: -30, Max: 120, Step: 1, Default: 0.0},
	{Name: "eee", Label: "EEE", Min: -20, Max: 20, Step: 0.2, Default: 0.0},
	{Name: "woo", Label: "WOO", Min: -20, Max: 20, Step: 0.2, Default: 0.0},
	{Name: "smile", Label: "Smile", Min: -2, Max: 2, Step: 0.01, Default: 0.0},
	{Name: "source_ratio", Label: "Source Ratio", Min: 0, Max: 1, Step: 0.01, Default: 1.0},
	{Name: "sample_ratio", Label: "Sample Ratio", Min: -0.2, Max: 1.2, Step: 0.01, Default: 1.0, Hidden: true},
	{Name: "sample_parts", Label: "Sample Parts", Default: string(PartsAll), Choices: sampleParts, Hidden: true},
	{Name: "crop_factor", Label: "Face Crop Factor", Min: 1.5, Max: 2.5, Step: 0.1, Default: 2.0},
}

// Definitions returns the expression controls in display order.
func Definitions() []ParamDef {
	out := make([]ParamDef, len(expressionDefs))
	copy(out, expressionDefs)
	return out
}

func DefaultExpressionParams() ExpressionParams {
	return ExpressionParams{
		ModelType:   ModelHuman,
		SourceRatio: 1,
		SampleRatio: 1,
		SampleParts: PartsAll,
		CropFactor:  2,
	}
}

func (p ExpressionParams) values() map[string]float64 {
	return map[string]float64{
		"rotate_pitch": p.RotatePitch,
		"rotate_yaw":   p.RotateYaw,
		"rotate_roll":  p.RotateRoll,
		"blink":        p.Blink,
		"eyebrow":      p.Eyebrow,
		"wink":         p.Wink,
		"pupil_x":      p.PupilX,
		"pupil_y":      p.PupilY,
		"aaa":          p.AAA,
		"eee":          p.EEE,
		"woo":          p.WOO,
		"smile":        p.Smile,
		"source_ratio": p.SourceRatio,
		"sample_ratio": p.SampleRatio,
		"crop_factor":  p.CropFactor,
	}
}

func (p ExpressionParams) Validate() error {
	if err := checkChoice("model_type", string(p.ModelType), modelTypes); err != nil {
		return err
	}
	if err := checkChoice("sample_parts", string(p.SampleParts), sampleParts); err != nil {
		return err
	}
	return checkRanges(expressionDefs, p.values())
}

type VideoParams struct {
	ModelType      ModelType `json:"model_type"`
	EyesAlignment  float64   `json:"eyes_alignment"`
	MouthAlignment float64   `json:"mouth_alignment"`
	CropFactor     float64   `json:"crop_factor"`
}

var videoDefs = []ParamDef{
	{Name: "model_type", Label: "Model Type", Default: string(ModelHuman), Choices: modelTypes, Hidden: true},
	{Name: "eyes_alignment", Label: "First frame eyes alignment factor", Min: 0, Max: 1, Step: 0.01, Default: 1.0},
	{Name: "mouth_alignment", Label: "First frame mouth alignment factor", Min: 0, Max: 1, Step: 0.01, Default: 1.0},
	{Name: "crop_factor", Label: "Face Crop Factor", Min: 1.5, Max: 2.5, Step: 0.1, Default: 2.0},
}

func VideoDefinitions() []ParamDef {
	out := make([]ParamDef, len(videoDefs))
	copy(out, videoDefs)
	return out
}

func DefaultVideoParams() VideoParams {
	return VideoParams{
		ModelType:      ModelHuman,
		EyesAlignment:  1,
		MouthAlignment: 1,
		CropFactor:     2,
	}
}

func (p VideoParams) Validate() error {
	if err := checkChoice("model_type", string(p.ModelType), modelTypes); err != nil {
		return err
	}
	return checkRanges(videoDefs, map[string]float64{
		"eyes_alignment":  p.EyesAlignment,
		"mouth_alignment": p.MouthAlignment,
		"crop_factor":     p.CropFactor,
	})
}

func checkChoice(name, value string, choices []string) error {
	for _, c := range choices {
		if value == c {
			return nil
		}
	}
	return fmt.Errorf("%w: %s %q is not one of %v", ErrInvalidParams, name, value, choices)
}

func checkRanges(defs []ParamDef, values map[string]float64) error {
	for _, d := range defs {
		if !d.numeric() {
			continue
		}
		v := values[d.Name]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not a finite number", ErrInvalidParams, d.Name)
		}
		if v < d.Min || v > d.Max {
			return fmt.Errorf("%w: %s = %g outside [%g, %g]", ErrInvalidParams, d.Name, v, d.Min, d.Max)
		}
	}
	return nil
}
