// GreenWatch chat - terminal client for a running GreenWatch server
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
)

const defaultServerURL = "http://127.0.0.1:8080"

type startResponse struct {
	SessionID     string   `json:"session_id"`
	Mode          string   `json:"mode"`
	MissingFields []string `json:"missing_fields"`
}

type llmInfo struct {
	OK        bool   `json:"ok"`
	Used      bool   `json:"used"`
	ModelName string `json:"model_name"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error"`
}

type turnResponse struct {
	TurnIndex     int               `json:"turn_index"`
	Mode          string            `json:"mode"`
	AssistantText string            `json:"assistant_text"`
	Slots         map[string]string `json:"slots"`
	MissingFields []string          `json:"missing_fields"`
	LLM           llmInfo           `json:"llm"`
}

type historyResponse struct {
	Count    int `json:"count"`
	Messages []struct {
		Role      string `json:"role"`
		Text      string `json:"text"`
		TurnIndex int    `json:"turn_index"`
	} `json:"messages"`
}

type apiError struct {
	Status  int
	Message string `json:"error"`
	Detail  string `json:"detail"`
}

func (e *apiError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Message, e.Detail)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

type client struct {
	base string
	http *http.Client
}

func newClient(base string) *client {
	return &client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 90 * time.Second},
	}
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := &apiError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *client) start(ctx context.Context) (*startResponse, error) {
	var out startResponse
	if err := c.do(ctx, http.MethodPost, "/session/start", struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) send(ctx context.Context, sessionID, text string) (*turnResponse, error) {
	var out turnResponse
	body := map[string]string{"session_id": sessionID, "user_text": text}
	if err := c.do(ctx, http.MethodPost, "/session/message", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) history(ctx context.Context, sessionID string, n int) (*historyResponse, error) {
	var out historyResponse
	q := url.Values{"session_id": {sessionID}, "n": {fmt.Sprint(n)}}
	if err := c.do(ctx, http.MethodGet, "/session/history?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func main() {
	serverURL := flag.String("server", envOr("GREENWATCH_URL", defaultServerURL), "GreenWatch server base URL")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, newClient(*serverURL), os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// run starts a session and relays stdin lines as turns until EOF or /quit.
func run(ctx context.Context, c *client, in io.Reader, out io.Writer) error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)
	dim := color.New(color.Faint)

	started, err := c.start(ctx)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	cyan.Fprintf(out, "Session %s started (%s)\n", started.SessionID, started.Mode)
	dim.Fprintln(out, "Type a message, /history to show the conversation, /quit to leave.")
	green.Fprintln(out, "assistant: Hi. Say anything to get started.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/history":
			h, err := c.history(ctx, started.SessionID, 50)
			if err != nil {
				red.Fprintf(out, "error: %v\n", err)
				continue
			}
			for _, m := range h.Messages {
				dim.Fprintf(out, "[%d] %s: %s\n", m.TurnIndex, m.Role, m.Text)
			}
			continue
		}

		res, err := c.send(ctx, started.SessionID, line)
		if err != nil {
			var apiErr *apiError
			if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
				return fmt.Errorf("session expired on server: %w", err)
			}
			if ctx.Err() != nil {
				return nil
			}
			red.Fprintf(out, "error: %v\n", err)
			continue
		}

		green.Fprintf(out, "assistant: %s\n", res.AssistantText)
		status := fmt.Sprintf("turn %d, mode %s", res.TurnIndex, res.Mode)
		if len(res.MissingFields) > 0 {
			status += ", missing " + strings.Join(res.MissingFields, ", ")
		}
		if res.LLM.Used {
			status += fmt.Sprintf(", %s %dms", res.LLM.ModelName, res.LLM.LatencyMS)
		}
		dim.Fprintln(out, status)
		if !res.LLM.OK {
			yellow.Fprintf(out, "generation failed: %s\n", res.LLM.Error)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}
