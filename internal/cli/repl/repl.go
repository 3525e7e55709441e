package repl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	httpclient "conqueroj/internal/cli/http"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

// Session holds REPL state.
type Session struct {
	client      *httpclient.Client
	judgeClient *httpclient.Client
	historyFile string
	out         io.Writer
}

func New(client, judgeClient *httpclient.Client, historyFile string) *Session {
	return &Session{
		client:      client,
		judgeClient: judgeClient,
		historyFile: historyFile,
		out:         os.Stdout,
	}
}

// Run drives the prompt loop until quit or EOF.
func (s *Session) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "conqueroj> ",
		HistoryFile:     s.historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("init readline failed: %w", err)
	}
	defer func() { _ = rl.Close() }()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		args, err := shlex.Split(line)
		if err != nil {
			s.printLine("parse input failed: %v", err)
			continue
		}

		switch args[0] {
		case "exit", "quit":
			s.printLine("bye")
			return nil
		case "help":
			s.printHelp()
		case "submit":
			s.handleSubmit(ctx, args[1:])
		case "status":
			s.handleStatus(ctx, args[1:])
		case "source":
			s.handleSource(ctx, args[1:])
		case "top":
			s.handleTop(ctx, args[1:])
		case "set":
			s.handleSet(args[1:])
		default:
			s.printLine("unknown command %q, try help", args[0])
		}
	}
}

func (s *Session) printHelp() {
	s.printLine("commands:")
	s.printLine("  submit <user_id> <problem_id> <language> <source_file>")
	s.printLine("  status <submission_id>")
	s.printLine("  source <submission_id>")
	s.printLine("  top [limit]")
	s.printLine("  set base <url> | set judge <url> | set timeout <duration>")
	s.printLine("  help, exit")
}

func (s *Session) handleSubmit(ctx context.Context, args []string) {
	if len(args) != 4 {
		s.printLine("usage: submit <user_id> <problem_id> <language> <source_file>")
		return
	}
	source, err := os.ReadFile(args[3])
	if err != nil {
		s.printLine("read source file failed: %v", err)
		return
	}
	body, err := json.Marshal(map[string]string{
		"user_id":     args[0],
		"problem_id":  args[1],
		"language":    args[2],
		"source_code": string(source),
	})
	if err != nil {
		s.printLine("encode request failed: %v", err)
		return
	}
	resp, err := s.client.Do(ctx, "POST", "/api/v1/submissions", body)
	if err != nil {
		s.printLine("submit failed: %v", err)
		return
	}
	s.printResponse(resp)
}

func (s *Session) handleStatus(ctx context.Context, args []string) {
	if len(args) != 1 {
		s.printLine("usage: status <submission_id>")
		return
	}
	resp, err := s.client.Do(ctx, "GET", "/api/v1/submissions/"+args[0], nil)
	if err != nil {
		s.printLine("status failed: %v", err)
		return
	}
	s.printResponse(resp)
}

func (s *Session) handleSource(ctx context.Context, args []string) {
	if len(args) != 1 {
		s.printLine("usage: source <submission_id>")
		return
	}
	resp, err := s.client.Do(ctx, "GET", "/api/v1/submissions/"+args[0]+"/source", nil)
	if err != nil {
		s.printLine("source failed: %v", err)
		return
	}
	s.printResponse(resp)
}

func (s *Session) handleTop(ctx context.Context, args []string) {
	limit := "10"
	if len(args) > 0 {
		limit = args[0]
	}
	resp, err := s.judgeClient.Do(ctx, "GET", "/api/v1/judge/leaderboard?limit="+limit, nil)
	if err != nil {
		s.printLine("leaderboard failed: %v", err)
		return
	}
	s.printResponse(resp)
}

func (s *Session) handleSet(args []string) {
	if len(args) < 2 {
		s.printLine("usage: set base|judge|timeout <value>")
		return
	}
	switch args[0] {
	case "base":
		s.client.SetBaseURL(args[1])
		s.printLine("base set to %s", args[1])
	case "judge":
		s.judgeClient.SetBaseURL(args[1])
		s.printLine("judge set to %s", args[1])
	case "timeout":
		dur, err := time.ParseDuration(args[1])
		if err != nil {
			s.printLine("invalid duration: %v", err)
			return
		}
		s.client.SetTimeout(dur)
		s.judgeClient.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	default:
		s.printLine("usage: set base|judge|timeout <value>")
	}
}

func (s *Session) printResponse(resp httpclient.ResponseInfo) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, resp.Body, "", "  "); err != nil {
		s.printLine("[%d] %s (%s)", resp.StatusCode, string(resp.Body), resp.Duration.Round(time.Millisecond))
		return
	}
	s.printLine("[%d] (%s)\n%s", resp.StatusCode, resp.Duration.Round(time.Millisecond), pretty.String())
}

func (s *Session) printLine(format string, args ...interface{}) {
	fmt.Fprintf(s.out, format+"\n", args...)
}
