package worker

import "errors"

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrAnalysisInFlight    = errors.New("an analysis is already running for this session")
	ErrServerBusy          = errors.New("too many analyses running, try again shortly")
	ErrUnsupportedCrop     = errors.New("unsupported crop")
	ErrUnsupportedLanguage = errors.New("unsupported language")
)
