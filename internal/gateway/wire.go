package gateway

// Relay wire format. Failures carry either "error" (handled failures) or
// "detail" (request validation).

type PredictRequest struct {
	Image string `json:"image"`
	Crop  string `json:"crop"`
}

type PredictResponse struct {
	Success    bool    `json:"success"`
	Disease    string  `json:"disease,omitempty"`
	Confidence float64 `json:"confidence"`
	Crop       string  `json:"crop,omitempty"`
	Error      string  `json:"error,omitempty"`
	Detail     string  `json:"detail,omitempty"`
}

type ExplainRequest struct {
	Crop     string `json:"crop"`
	Disease  string `json:"disease"`
	Language string `json:"language"`
}

type ExplainResponse struct {
	Success     bool   `json:"success"`
	Explanation string `json:"explanation,omitempty"`
	Crop        string `json:"crop,omitempty"`
	Disease     string `json:"disease,omitempty"`
	Language    string `json:"language,omitempty"`
	Error       string `json:"error,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

type VoiceRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type VoiceResponse struct {
	Success      bool   `json:"success"`
	AudioBase64  string `json:"audioBase64,omitempty"`
	Language     string `json:"language,omitempty"`
	LanguageCode string `json:"languageCode,omitempty"`
	Error        string `json:"error,omitempty"`
	Detail       string `json:"detail,omitempty"`
}

// StatusResponse is returned by the relay health route.
type StatusResponse struct {
	Status          string   `json:"status"`
	Message         string   `json:"message"`
	ModelsAvailable []string `json:"models_available"`
}

// Message prefixes shared by both gateway implementations and the relay.
const (
	PredictFailedPrefix = "Prediction failed: "
	ExplainFailedPrefix = "Explanation unavailable: "
	VoiceFailedPrefix   = "Voice generation failed: "
)

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
