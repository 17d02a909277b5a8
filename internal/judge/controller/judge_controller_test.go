package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"coderush/internal/judge/exercise"
	"coderush/internal/judge/model"
	"coderush/internal/judge/sandbox/result"
	"coderush/internal/judge/service"
	appErr "coderush/pkg/errors"

	"github.com/gin-gonic/gin"
)

type fakeJudgeService struct {
	report    result.ValidationReport
	submitErr error
	lastReq   service.SubmitRequest
	healthy   bool
	recovered bool
}

func (f *fakeJudgeService) GetExercise(ctx context.Context, id int) (exercise.Exercise, error) {
	for _, ex := range exercise.Default() {
		if ex.ID == id {
			return ex, nil
		}
	}
	return exercise.Exercise{}, appErr.New(appErr.ExerciseNotFound).WithMessage("Task not found.")
}

func (f *fakeJudgeService) SubmitAnswer(ctx context.Context, req service.SubmitRequest) (result.ValidationReport, error) {
	f.lastReq = req
	return f.report, f.submitErr
}

func (f *fakeJudgeService) GetStatus(ctx context.Context, submissionID string) (model.JudgeStatusResponse, error) {
	if submissionID != "s1" {
		return model.JudgeStatusResponse{}, appErr.New(appErr.NotFound)
	}
	return model.JudgeStatusResponse{SubmissionID: "s1", Status: result.StatusRunning}, nil
}

func (f *fakeJudgeService) Health() service.Health {
	return service.Health{Healthy: f.healthy, Capacity: 1}
}

func (f *fakeJudgeService) Recover(ctx context.Context) {
	f.recovered = true
	f.healthy = true
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(r http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func newRouter(svc JudgeService, exposeWarnings, admin bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewJudgeController(svc, exposeWarnings)
	if admin {
		h.RegisterAdmin(r)
	} else {
		h.Register(r)
	}
	return r
}

func serve(t *testing.T, svc JudgeService, exposeWarnings bool, method, path string, body []byte) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := do(newRouter(svc, exposeWarnings, false), method, path, body)
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response failed: %v body=%s", err, w.Body.String())
	}
	return w, env
}

func TestGetTask(t *testing.T) {
	w, env := serve(t, &fakeJudgeService{}, false, http.MethodGet, "/api/v1/task/1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", w.Code)
	}
	var data map[string]interface{}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data failed: %v", err)
	}
	if data["title"] != "Check Even or Odd" {
		t.Fatalf("unexpected title: %v", data["title"])
	}
	if _, leaked := data["tests"]; leaked {
		t.Fatalf("hidden tests must not be exposed")
	}
	if _, leaked := data["Tests"]; leaked {
		t.Fatalf("hidden tests must not be exposed")
	}
}

func TestGetTaskNotFound(t *testing.T) {
	w, env := serve(t, &fakeJudgeService{}, false, http.MethodGet, "/api/v1/task/2", nil)
	if w.Code != http.StatusNotFound || env.Message != "Task not found." {
		t.Fatalf("unexpected response %d %+v", w.Code, env)
	}
	w, _ = serve(t, &fakeJudgeService{}, false, http.MethodGet, "/api/v1/task/abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", w.Code)
	}
}

func TestSubmitAnswerMessages(t *testing.T) {
	tc := result.TestCase{Input: "4", ExpectedOutput: "Even"}
	compileFailed := result.ValidationReport{
		Diagnostics: []result.Diagnostic{
			{Severity: result.SeverityError, Message: "undefined: x", File: "main.go", Line: 4, Column: 2},
			{Severity: result.SeverityWarning, Message: "unused import"},
		},
	}
	compileFailed.Finalize()
	passed := result.ValidationReport{Outcomes: []result.ExecutionOutcome{result.NewOutcome(tc, "Even", 1)}}
	passed.Finalize()
	failed := result.ValidationReport{Outcomes: []result.ExecutionOutcome{result.NewOutcome(tc, "Odd", 1)}}
	failed.Finalize()

	cases := []struct {
		name    string
		report  result.ValidationReport
		message string
	}{
		{"compile error", compileFailed, model.MessageCompilationError},
		{"all passed", passed, model.MessageAllPassed},
		{"some failed", failed, model.MessageSomeFailed},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			svc := &fakeJudgeService{report: c.report}
			body, _ := json.Marshal(model.SubmitAnswerRequest{Code: "package main", TaskID: 1, Language: "go"})
			w, env := serve(t, svc, false, http.MethodPost, "/api/v1/task/submit-answer", body)
			if w.Code != http.StatusOK || env.Message != c.message {
				t.Fatalf("unexpected response %d %+v", w.Code, env)
			}
			var data model.SubmitAnswerResponse
			if err := json.Unmarshal(env.Data, &data); err != nil {
				t.Fatalf("decode data failed: %v", err)
			}
			if len(data.Warnings) != 0 {
				t.Fatalf("warnings must be hidden by default: %v", data.Warnings)
			}
			if svc.lastReq.ExerciseID != 1 || svc.lastReq.Language != "go" {
				t.Fatalf("unexpected forwarded request: %+v", svc.lastReq)
			}
		})
	}
}

func TestSubmitAnswerExposesWarningsWhenEnabled(t *testing.T) {
	report := result.ValidationReport{
		Diagnostics: []result.Diagnostic{{Severity: result.SeverityWarning, Message: "unused variable"}},
		Outcomes:    []result.ExecutionOutcome{result.NewOutcome(result.TestCase{Input: "1", ExpectedOutput: "Odd"}, "Odd", 1)},
	}
	report.Finalize()
	body, _ := json.Marshal(model.SubmitAnswerRequest{Code: "x"})
	_, env := serve(t, &fakeJudgeService{report: report}, true, http.MethodPost, "/api/v1/task/submit-answer", body)
	var data model.SubmitAnswerResponse
	_ = json.Unmarshal(env.Data, &data)
	if env.Message != model.MessageAllPassed || len(data.Warnings) != 1 {
		t.Fatalf("unexpected response: %+v %+v", env, data)
	}
}

func TestSubmitAnswerErrors(t *testing.T) {
	w, _ := serve(t, &fakeJudgeService{}, false, http.MethodPost, "/api/v1/task/submit-answer", []byte("{"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", w.Code)
	}
	svc := &fakeJudgeService{submitErr: appErr.New(appErr.ServiceUnavailable)}
	body, _ := json.Marshal(model.SubmitAnswerRequest{Code: "x"})
	w, env := serve(t, svc, false, http.MethodPost, "/api/v1/task/submit-answer", body)
	if w.Code != http.StatusServiceUnavailable || env.Code != int(appErr.ServiceUnavailable) {
		t.Fatalf("unexpected response %d %+v", w.Code, env)
	}
	svc = &fakeJudgeService{submitErr: appErr.New(appErr.JudgeQueueFull)}
	w, _ = serve(t, svc, false, http.MethodPost, "/api/v1/task/submit-answer", body)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("unexpected status %d", w.Code)
	}
}

func TestGetStatus(t *testing.T) {
	w, _ := serve(t, &fakeJudgeService{}, false, http.MethodGet, "/api/v1/judge/submissions/s1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", w.Code)
	}
	w, _ = serve(t, &fakeJudgeService{}, false, http.MethodGet, "/api/v1/judge/submissions/s2", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unexpected status %d", w.Code)
	}
}

func TestHealthAndRecover(t *testing.T) {
	svc := &fakeJudgeService{healthy: false}
	w, _ := serve(t, svc, false, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while degraded, got %d", w.Code)
	}
	w = do(newRouter(svc, false, false), http.MethodPost, "/api/v1/judge/recover", nil)
	if w.Code != http.StatusNotFound || svc.recovered {
		t.Fatalf("recover must not be served on the public router: %d", w.Code)
	}
	w = do(newRouter(svc, false, true), http.MethodPost, "/api/v1/judge/recover", nil)
	if w.Code != http.StatusOK || !svc.recovered {
		t.Fatalf("recover failed: %d", w.Code)
	}
	w, _ = serve(t, svc, false, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after recover, got %d", w.Code)
	}
}
