// Package main provides a desktop notification hook for Linux.
// It raises alerts through notify-send and reports the "Show me" action
// back as an acknowledgment.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Alert mirrors the fields of the alert payload this hook uses.
type Alert struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Icon    string `json:"icon"`
	Urgency string `json:"urgency"`
	Action  string `json:"action"`
}

// Request represents the input from the hook executor.
type Request struct {
	Event  string          `json:"event"`
	Alert  Alert           `json:"alert"`
	Config json.RawMessage `json:"config"`
}

// Response represents the output to the hook executor.
type Response struct {
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	Acknowledged bool   `json:"acknowledged,omitempty"`
}

// Config is read from the manifest's config block.
type Config struct {
	// Wait blocks until the notification is dismissed or its action chosen.
	Wait     bool `json:"wait"`
	ExpireMS int  `json:"expire_ms"`
}

// actionKey identifies the "Show me" action in notify-send output.
const actionKey = "show"

// eventHandler handles one event and reports whether the user acknowledged.
type eventHandler func(req Request, cfg Config) (bool, error)

var eventHandlers = map[string]eventHandler{
	"alert":        raise,
	"acknowledged": confirm,
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	var cfg Config
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeErrorResponse(fmt.Sprintf("invalid config: %v", err))
			return
		}
	}

	handler, ok := eventHandlers[req.Event]
	if !ok {
		writeErrorResponse(fmt.Sprintf("unknown event: %s", req.Event))
		return
	}

	acked, err := handler(req, cfg)
	if err != nil {
		writeErrorResponse(fmt.Sprintf("event %s failed: %v", req.Event, err))
		return
	}

	json.NewEncoder(os.Stdout).Encode(Response{Success: true, Acknowledged: acked})
}

func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}

// raise shows the alarm notification. With Wait set, notify-send prints
// the chosen action key once the user clicks it.
func raise(req Request, cfg Config) (bool, error) {
	a := req.Alert
	args := []string{"--app-name=kitchenwatch"}
	if a.Urgency != "" {
		args = append(args, "--urgency="+a.Urgency)
	}
	if a.Icon != "" {
		args = append(args, "--icon="+a.Icon)
	}
	if cfg.ExpireMS > 0 {
		args = append(args, "--expire-time="+strconv.Itoa(cfg.ExpireMS))
	}
	if cfg.Wait && a.Action != "" {
		args = append(args, "--action="+actionKey+"="+a.Action, "--wait")
	}
	args = append(args, a.Title, a.Message)

	out, err := runNotifySend(args...)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == actionKey, nil
}

// confirm posts a low urgency note that the alert was handled elsewhere.
func confirm(req Request, _ Config) (bool, error) {
	_, err := runNotifySend("--app-name=kitchenwatch", "--urgency=low", req.Alert.Title, "Alert acknowledged")
	return false, err
}

func runNotifySend(args ...string) (string, error) {
	cmd := exec.Command("notify-send", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}
