// Package presentation turns a diagnosis snapshot into what the UI renders.
package presentation

import (
	"fmt"
	"strings"

	"harvesttutor/internal/models"
)

type Panel string

const (
	PanelPlaceholder Panel = "placeholder"
	PanelProgress    Panel = "progress"
	PanelError       Panel = "error"
	PanelResult      Panel = "result"
)

const audioMimeType = "audio/mpeg"

var progressText = map[models.AnalysisState]string{
	models.StatePredicting:      "Analyzing your crop photo...",
	models.StateExplaining:      "Preparing an explanation...",
	models.StateGeneratingVoice: "Generating voice guidance...",
}

// speechLocales is the browser speech-synthesis locale for the local fallback.
// Only English and Hindi have entries; other languages use the English locale.
var speechLocales = map[string]string{
	"English": "en-US",
	"Hindi":   "hi-IN",
}

const defaultSpeechLocale = "en-US"

type View struct {
	State          models.AnalysisState `json:"state"`
	Panel          Panel                `json:"panel"`
	Progress       string               `json:"progress,omitempty"`
	Error          string               `json:"error,omitempty"`
	Image          *models.ImageInfo    `json:"image,omitempty"`
	Diagnosis      *DiagnosisView       `json:"diagnosis,omitempty"`
	Explanation    string               `json:"explanation,omitempty"`
	Audio          *AudioView           `json:"audio,omitempty"`
	SpeechFallback *SpeechFallback      `json:"speech_fallback,omitempty"`
	CanAnalyze     bool                 `json:"can_analyze"`
}

type DiagnosisView struct {
	Crop           string  `json:"crop"`
	Language       string  `json:"language"`
	Disease        string  `json:"disease"`
	Confidence     float64 `json:"confidence"`
	ConfidenceText string  `json:"confidence_text"`
}

type AudioView struct {
	MimeType string `json:"mime_type"`
	Source   string `json:"src"`
}

// SpeechFallback asks the client to read Text aloud with its own speech engine.
type SpeechFallback struct {
	Locale string `json:"locale"`
	Text   string `json:"text"`
}

// Render is a pure function of the snapshot.
func Render(s models.Snapshot) View {
	v := View{
		State:      s.State,
		Image:      s.Image,
		CanAnalyze: !s.State.Busy() && s.Image != nil,
	}
	switch {
	case s.State == models.StateError:
		v.Panel = PanelError
		v.Error = s.Error
		return v
	case s.State.Busy():
		v.Panel = PanelProgress
		v.Progress = progressText[s.State]
	case s.State == models.StateComplete:
		v.Panel = PanelResult
	default:
		v.Panel = PanelPlaceholder
		return v
	}

	if c := s.Classification; c != nil {
		v.Diagnosis = &DiagnosisView{
			Crop:           s.Crop,
			Language:       s.Language,
			Disease:        c.Disease,
			Confidence:     c.Confidence,
			ConfidenceText: FormatConfidence(c.Confidence),
		}
	}
	if e := s.Explanation; e != nil && e.Explanation != "" {
		v.Explanation = e.Explanation
	}
	if a := s.Voice; a != nil && a.AudioBase64 != "" {
		v.Audio = &AudioView{
			MimeType: audioMimeType,
			Source:   "data:" + audioMimeType + ";base64," + a.AudioBase64,
		}
	} else if s.State == models.StateComplete && v.Explanation != "" {
		v.SpeechFallback = &SpeechFallback{Locale: SpeechLocale(s.Language), Text: v.Explanation}
	}
	return v
}

// FormatConfidence renders a [0,1] score as a percentage with one decimal.
func FormatConfidence(score float64) string {
	return fmt.Sprintf("%.1f%%", score*100)
}

// SpeechLocale returns the fallback speech locale for a language label.
func SpeechLocale(language string) string {
	if loc, ok := speechLocales[strings.TrimSpace(language)]; ok {
		return loc
	}
	return defaultSpeechLocale
}
