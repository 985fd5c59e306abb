// radiance/types/diagnosis.go
package types

import "radiance/radiance/pipeline"

type StartDiagnosisRequest struct {
	UserInput pipeline.UserInput `json:"user_input"`
}

// DiagnosisStreamInput is the first frame on the diagnosis websocket: a
// bearer token plus either a session to resume or fresh patient input.
type DiagnosisStreamInput struct {
	Token     string              `json:"token"`
	SessionID string              `json:"session_id,omitempty"`
	UserInput *pipeline.UserInput `json:"user_input,omitempty"`
}
