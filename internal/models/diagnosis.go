package models

// DiagnosisRequest is the input of one analysis cycle.
type DiagnosisRequest struct {
	Crop     string
	Language string
	Image    *UploadedImage
}

// ClassificationResult is the classifier's answer for an image.
type ClassificationResult struct {
	Success    bool    `json:"success"`
	Disease    string  `json:"disease,omitempty"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error,omitempty"`
}

// ExplanationResult carries the prose explanation for a disease.
type ExplanationResult struct {
	Success     bool   `json:"success"`
	Explanation string `json:"explanation,omitempty"`
	Error       string `json:"error,omitempty"`
}

// VoiceResult carries synthesized speech, base64 encoded.
type VoiceResult struct {
	Success     bool   `json:"success"`
	AudioBase64 string `json:"audioBase64,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Snapshot is the observable state of a session's current cycle.
type Snapshot struct {
	State          AnalysisState         `json:"state"`
	Crop           string                `json:"crop"`
	Language       string                `json:"language"`
	Image          *ImageInfo            `json:"image,omitempty"`
	Classification *ClassificationResult `json:"classification,omitempty"`
	Explanation    *ExplanationResult    `json:"explanation,omitempty"`
	Voice          *VoiceResult          `json:"voice,omitempty"`
	Error          string                `json:"error,omitempty"`
}

// NewSnapshot returns an idle snapshot for the request, with no results.
func NewSnapshot(req DiagnosisRequest) Snapshot {
	return Snapshot{
		State:    StateIdle,
		Crop:     req.Crop,
		Language: req.Language,
		Image:    req.Image.Info(),
	}
}

// Clone returns a deep copy so observers never share result pointers.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Image != nil {
		img := *s.Image
		out.Image = &img
	}
	if s.Classification != nil {
		c := *s.Classification
		out.Classification = &c
	}
	if s.Explanation != nil {
		e := *s.Explanation
		out.Explanation = &e
	}
	if s.Voice != nil {
		v := *s.Voice
		out.Voice = &v
	}
	return out
}
