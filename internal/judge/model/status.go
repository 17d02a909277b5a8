package model

import "coderush/internal/judge/sandbox/result"

// Progress tracks how many cases of a submission have run.
type Progress struct {
	TotalTests int `json:"totalTests"`
	DoneTests  int `json:"doneTests"`
}

// Timestamps are unix milliseconds.
type Timestamps struct {
	ReceivedAt int64 `json:"receivedAt"`
	FinishedAt int64 `json:"finishedAt,omitempty"`
}

// JudgeStatusResponse is the externally visible state of one submission.
type JudgeStatusResponse struct {
	SubmissionID string             `json:"submissionId"`
	ExerciseID   int                `json:"taskId,omitempty"`
	Status       result.JudgeStatus `json:"status"`
	Verdict      result.Verdict     `json:"verdict,omitempty"`
	Language     string             `json:"language,omitempty"`
	Passed       int                `json:"passed,omitempty"`
	ErrorCode    int                `json:"errorCode,omitempty"`
	ErrorMessage string             `json:"errorMessage,omitempty"`
	Progress     Progress           `json:"progress"`
	Timestamps   Timestamps         `json:"timestamps"`
}

// Terminal reports whether no further updates are expected.
func (s JudgeStatusResponse) Terminal() bool {
	return s.Status == result.StatusFinished || s.Status == result.StatusFailed
}
