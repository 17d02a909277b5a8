package model

import "coderush/internal/judge/sandbox/result"

// SubmitAnswerRequest is the body of the submit-answer endpoint.
type SubmitAnswerRequest struct {
	Code     string `json:"code"`
	TaskID   int    `json:"taskId"`
	Language string `json:"language"`
}

// TestResult is one graded case as shown to the learner.
type TestResult struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	ActualOutput   string `json:"actualOutput"`
	IsSuccess      bool   `json:"isSuccess"`
}

// SubmitAnswerResponse is the data payload of a graded submission.
type SubmitAnswerResponse struct {
	SubmissionID string         `json:"submissionId"`
	Verdict      result.Verdict `json:"verdict"`
	Errors       []string       `json:"errors,omitempty"`
	Warnings     []string       `json:"warnings,omitempty"`
	TestResults  []TestResult   `json:"testResults,omitempty"`
}

const (
	MessageCompilationError = "Compilation error"
	MessageAllPassed        = "All tests passed!"
	MessageSomeFailed       = "Some tests failed."
)

// NewSubmitAnswerResponse shapes a report for the learner and picks the
// summary message. Warnings are copied only when exposeWarnings is set.
func NewSubmitAnswerResponse(report result.ValidationReport, exposeWarnings bool) (string, SubmitAnswerResponse) {
	resp := SubmitAnswerResponse{
		SubmissionID: report.SubmissionID,
		Verdict:      report.Verdict,
	}
	if exposeWarnings {
		for _, w := range report.Warnings() {
			resp.Warnings = append(resp.Warnings, w.String())
		}
	}
	if report.CompileFailed() {
		for _, d := range report.Errors() {
			resp.Errors = append(resp.Errors, d.String())
		}
		return MessageCompilationError, resp
	}
	resp.TestResults = make([]TestResult, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		resp.TestResults = append(resp.TestResults, TestResult{
			Input:          o.Input,
			ExpectedOutput: o.ExpectedOutput,
			ActualOutput:   o.ActualOutput,
			IsSuccess:      o.Success,
		})
	}
	if report.Success {
		return MessageAllPassed, resp
	}
	return MessageSomeFailed, resp
}
