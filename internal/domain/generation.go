package domain

// GenerationResult describes what the generation backend did for a turn.
// It is always populated; a scripted turn reports Used=false with OK=true.
type GenerationResult struct {
	OK        bool   `json:"ok"`
	Used      bool   `json:"used"`
	OnDevice  bool   `json:"on_device"`
	Text      string `json:"-"`
	LatencyMS int64  `json:"latency_ms"`
	ModelName string `json:"model_name"`
	Error     string `json:"error"`
}

// UnusedResult reports a turn that did not call the backend.
func UnusedResult(modelName string, onDevice bool) GenerationResult {
	return GenerationResult{
		OK:        true,
		Used:      false,
		OnDevice:  onDevice,
		ModelName: modelName,
	}
}
