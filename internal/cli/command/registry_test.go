package command

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestBuildTaskGet(t *testing.T) {
	cmd := Registry()["task get"]
	params := Params{}
	params.Set("task_id", "1")
	req, err := BuildRequest(cmd, params)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if req.Method != "GET" || req.Path != "/api/v1/task/1" || req.Body != nil {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestBuildTaskSubmitFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.go")
	if err := os.WriteFile(path, []byte("package main"), 0600); err != nil {
		t.Fatalf("write source failed: %v", err)
	}
	params := Params{}
	params.Set("id", "1")
	params.Set("lang", "go")
	params.Set("source_file", path)
	params.Set("code", "_file_")
	req, err := BuildRequest(Registry()["task submit"], params)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("decode body failed: %v", err)
	}
	if body["code"] != "package main" || body["language"] != "go" || body["taskId"] != float64(1) {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestBuildTaskSubmitRequiresCode(t *testing.T) {
	if _, err := BuildRequest(Registry()["task submit"], Params{}); err == nil {
		t.Fatalf("expected missing code error")
	}
	params := Params{}
	params.Set("code", "x")
	params.Set("id", "one")
	if _, err := BuildRequest(Registry()["task submit"], params); err == nil {
		t.Fatalf("expected invalid task id error")
	}
}

func TestBuildPathMissingID(t *testing.T) {
	if _, err := BuildRequest(Registry()["judge status"], Params{}); err == nil {
		t.Fatalf("expected missing path parameter error")
	}
}

func TestOnlyRecoverIsAdmin(t *testing.T) {
	for key, cmd := range Registry() {
		if cmd.Admin != (key == "judge recover") {
			t.Fatalf("unexpected admin flag on %q", key)
		}
	}
}
