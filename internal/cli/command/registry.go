package command

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service:      "task",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/api/v1/task/:id",
			Fields: []Field{
				{Name: "id", Aliases: []string{"task_id"}, Prompt: "task_id", Type: FieldInt, Required: true},
			},
		},
		{
			Service:      "task",
			Action:       "submit",
			Method:       "POST",
			PathTemplate: "/api/v1/task/submit-answer",
			Fields: []Field{
				{Name: "id", Aliases: []string{"task_id"}, Prompt: "task_id", Type: FieldInt, Required: false},
				{Name: "language", Aliases: []string{"language_id", "lang"}, Prompt: "language", Type: FieldString, Required: false},
				{Name: "code", Aliases: []string{"source_code"}, Prompt: "code", Type: FieldString, Required: true},
				{Name: "source_file", Aliases: []string{"file"}, Prompt: "source_file", Type: FieldFile, Required: false},
			},
		},
		{
			Service:      "judge",
			Action:       "status",
			Method:       "GET",
			PathTemplate: "/api/v1/judge/submissions/:id",
			Fields: []Field{
				{Name: "id", Aliases: []string{"submission_id"}, Prompt: "submission_id", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "judge",
			Action:       "health",
			Method:       "GET",
			PathTemplate: "/healthz",
		},
		{
			Service:      "judge",
			Action:       "recover",
			Method:       "POST",
			PathTemplate: "/api/v1/judge/recover",
			Admin:        true,
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		result[cmd.Key()] = cmd
	}
	return result
}

// BuildRequest creates HTTP request spec based on command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)
	path, err := buildPath(cmd.PathTemplate, params)
	if err != nil {
		return RequestSpec{}, err
	}

	var body []byte
	if cmd.Method != "GET" && cmd.Method != "DELETE" {
		payload, err := buildPayload(cmd, params)
		if err != nil {
			return RequestSpec{}, err
		}
		if payload != nil {
			body, err = json.Marshal(payload)
			if err != nil {
				return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
			}
		}
	}

	return RequestSpec{
		Method:  cmd.Method,
		Path:    path,
		Headers: map[string]string{},
		Body:    body,
	}, nil
}

func buildPath(template string, params Params) (string, error) {
	path := template
	placeholder := ":id"
	if strings.Contains(path, placeholder) {
		value := params.Get("id")
		if value == "" {
			return "", fmt.Errorf("missing path parameter: id")
		}
		path = strings.ReplaceAll(path, placeholder, value)
	}
	return path, nil
}

func buildPayload(cmd Command, params Params) (interface{}, error) {
	if cmd.Service == "task" && cmd.Action == "submit" {
		return buildSubmitPayload(params)
	}
	return nil, nil
}

func buildSubmitPayload(params Params) (interface{}, error) {
	code := params.Get("code")
	var err error
	if (code == "" || code == "_file_") && params.Get("source_file") != "" {
		code, err = ReadFile(params.Get("source_file"))
		if err != nil {
			return nil, err
		}
	}
	if code == "" || code == "_file_" {
		return nil, fmt.Errorf("code is required")
	}

	payload := map[string]interface{}{
		"code": code,
	}
	if params.Get("id") != "" {
		taskID, err := ParseInt(params.Get("id"))
		if err != nil {
			return nil, fmt.Errorf("invalid task id: %w", err)
		}
		payload["taskId"] = taskID
	}
	if params.Get("language") != "" {
		payload["language"] = params.Get("language")
	}
	return payload, nil
}
