package repl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"coderush/internal/cli/command"
	httpclient "coderush/internal/cli/http"
	"coderush/internal/cli/state"
	pkgerrors "coderush/pkg/errors"

	"github.com/google/shlex"
)

const prompt = "coderush> "

// Session holds REPL state.
type Session struct {
	client       *httpclient.Client
	admin        *httpclient.Client
	commands     map[string]command.Command
	session      *state.SessionState
	statePath    string
	prettyJSON   bool
	input        io.Reader
	outputWriter *bufio.Writer
}

func New(client *httpclient.Client, commands map[string]command.Command, session *state.SessionState, statePath string, prettyJSON bool) *Session {
	return &Session{
		client:       client,
		commands:     commands,
		session:      session,
		statePath:    statePath,
		prettyJSON:   prettyJSON,
		input:        os.Stdin,
		outputWriter: bufio.NewWriter(os.Stdout),
	}
}

// SetAdminClient sets the client used for operator commands. Without one
// they go to the main client.
func (s *Session) SetAdminClient(client *httpclient.Client) {
	s.admin = client
}

// Run reads commands until exit or end of input.
func (s *Session) Run(ctx context.Context) {
	reader := bufio.NewReader(s.input)
	for {
		_, _ = s.outputWriter.WriteString(prompt)
		_ = s.outputWriter.Flush()
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				s.printLine("read input failed: %v", err)
			}
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		handled, quit := s.handleSystemCommand(line)
		if quit {
			return
		}
		if handled {
			continue
		}

		if err := s.handleCommand(ctx, reader, line); err != nil {
			s.printLine("error: %v", err)
		}
	}
}

func (s *Session) handleSystemCommand(line string) (handled bool, quit bool) {
	switch line {
	case "exit", "quit":
		s.printLine("bye")
		return true, true
	case "help":
		s.printHelp()
		return true, false
	}
	if strings.HasPrefix(line, "set ") {
		s.handleSet(strings.TrimSpace(strings.TrimPrefix(line, "set ")))
		return true, false
	}
	if strings.HasPrefix(line, "show ") {
		s.handleShow(strings.TrimSpace(strings.TrimPrefix(line, "show ")))
		return true, false
	}
	return false, false
}

func (s *Session) handleSet(args string) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		s.printLine("usage: set base|timeout")
		return
	}
	switch parts[0] {
	case "base":
		if len(parts) < 2 {
			s.printLine("usage: set base http://127.0.0.1:8085")
			return
		}
		s.client.SetBaseURL(parts[1])
		s.printLine("base set to %s", parts[1])
	case "timeout":
		if len(parts) < 2 {
			s.printLine("usage: set timeout 10s")
			return
		}
		dur, err := time.ParseDuration(parts[1])
		if err != nil {
			s.printLine("invalid duration: %v", err)
			return
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	default:
		s.printLine("unknown set command")
	}
}

func (s *Session) handleShow(args string) {
	switch args {
	case "last":
		if s.session.LastSubmissionID == "" {
			s.printLine("last submission: <none>")
			return
		}
		s.printLine("last submission: %s (task %d)", s.session.LastSubmissionID, s.session.LastTaskID)
	case "config":
		s.printLine("base: %s", s.client.BaseURL())
		if s.admin != nil {
			s.printLine("admin: %s", s.admin.BaseURL())
		}
		s.printLine("statePath: %s", s.statePath)
	default:
		s.printLine("usage: show last|config")
	}
}

func (s *Session) handleCommand(ctx context.Context, reader *bufio.Reader, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) < 2 {
		return fmt.Errorf("invalid command, use: <service> <action> key=value ...")
	}
	service := tokens[0]
	action := tokens[1]
	key := fmt.Sprintf("%s %s", service, action)
	cmd, ok := s.commands[key]
	if !ok {
		return fmt.Errorf("unknown command: %s %s", service, action)
	}
	params := command.Params{}
	for _, token := range tokens[2:] {
		parts := strings.SplitN(token, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid param: %s", token)
		}
		params.Set(parts[0], parts[1])
	}

	params.Canonicalize(cmd.Fields)
	s.applyParamShortcuts(cmd, params)
	if err := s.promptMissing(reader, cmd, params); err != nil {
		return err
	}
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	client := s.client
	if cmd.Admin && s.admin != nil {
		client = s.admin
	}
	resp, err := client.Do(ctx, req.Method, req.Path, req.Headers, req.Body)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	s.rememberSubmission(cmd, params, resp.Body)
	return nil
}

func (s *Session) applyParamShortcuts(cmd command.Command, params command.Params) {
	if cmd.Service == "task" && cmd.Action == "submit" {
		if params.Get("source_file") != "" && params.Get("code") == "" {
			params.Set("code", "_file_")
		}
	}
	if cmd.Service == "judge" && cmd.Action == "status" {
		if params.Get("id") == "" && s.session.LastSubmissionID != "" {
			params.Set("id", s.session.LastSubmissionID)
		}
	}
}

func (s *Session) promptMissing(reader *bufio.Reader, cmd command.Command, params command.Params) error {
	for _, field := range cmd.Fields {
		if !field.Required {
			continue
		}
		if params.Get(field.Name) != "" {
			continue
		}
		value, err := s.promptValue(reader, field.Prompt)
		if err != nil {
			return err
		}
		params.Set(field.Name, value)
	}
	return nil
}

func (s *Session) promptValue(reader *bufio.Reader, prompt string) (string, error) {
	s.printLine("%s:", prompt)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read input failed: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	if id := resp.RequestID(); id != "" {
		s.printLine("HTTP %d (%s) request_id=%s", resp.StatusCode, resp.Duration, id)
	} else {
		s.printLine("HTTP %d (%s)", resp.StatusCode, resp.Duration)
	}
	if len(resp.Body) == 0 {
		return
	}
	if s.prettyJSON {
		var raw interface{}
		if err := json.Unmarshal(resp.Body, &raw); err == nil {
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			s.printLine("%s", string(formatted))
			return
		}
	}
	s.printLine("%s", string(resp.Body))
}

// rememberSubmission keeps the id of the last accepted submission so that
// "judge status" works without arguments.
func (s *Session) rememberSubmission(cmd command.Command, params command.Params, body []byte) {
	if cmd.Service != "task" || cmd.Action != "submit" {
		return
	}
	type submitData struct {
		SubmissionID string `json:"submissionId"`
	}
	type respEnvelope struct {
		Code int        `json:"code"`
		Data submitData `json:"data"`
	}
	var resp respEnvelope
	if err := json.Unmarshal(body, &resp); err != nil {
		return
	}
	if resp.Code != int(pkgerrors.Success) || resp.Data.SubmissionID == "" {
		return
	}
	s.session.LastSubmissionID = resp.Data.SubmissionID
	if taskID, err := command.ParseInt(params.Get("id")); err == nil {
		s.session.LastTaskID = taskID
	}
	s.session.UpdatedAt = time.Now()
	if err := state.Save(s.statePath, *s.session); err != nil {
		s.printLine("save session state failed: %v", err)
	}
}

func (s *Session) printHelp() {
	s.printLine("usage: <service> <action> key=value ...")
	s.printLine("system: help | exit | set base|timeout | show last|config")
	s.printLine("examples:")
	s.printLine("  task get id=1")
	s.printLine("  task submit id=1 language=go source_file=./main.go")
	s.printLine("  judge status id=<submission_id>")
	s.printLine("  judge health")
	s.printLine("  judge recover")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.outputWriter, format+"\n", args...)
	_ = s.outputWriter.Flush()
}
