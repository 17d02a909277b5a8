package engine

import (
	"encoding/json"

	"coderush/internal/judge/sandbox/security"
	"coderush/internal/judge/sandbox/spec"
)

// RequestFlag is the sandbox-init argument carrying the encoded init request.
const RequestFlag = "--request"

// InitRequest is decoded by sandbox-init before it execs the target.
type InitRequest struct {
	WorkDir       string                    `json:"workDir"`
	Cmd           []string                  `json:"cmd"`
	Env           []string                  `json:"env"`
	Limits        spec.ResourceLimit        `json:"limits"`
	Isolation     security.IsolationProfile `json:"isolation"`
	EnableSeccomp bool                      `json:"enableSeccomp"`
	EnableNs      bool                      `json:"enableNs"`
}

// helperArgs builds the sandbox-init argv. Stdin stays free for the program input.
func helperArgs(req InitRequest) ([]string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return []string{RequestFlag, string(data)}, nil
}
