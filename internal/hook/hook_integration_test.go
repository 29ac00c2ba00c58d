package hook

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/ayusman/kitchenwatch/internal/alert"
)

func TestHook_NotifySend_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	if runtime.GOOS != "linux" {
		t.Skip("notify-send hook only works on Linux")
	}
	if _, err := exec.LookPath("notify-send"); err != nil {
		t.Skip("notify-send not installed")
	}
	if os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
		t.Skip("no desktop session")
	}

	hookDir := findHookDir("notify-send")
	if hookDir == "" {
		t.Skip("notify-send hook not built")
	}

	mgr := NewManager(filepath.Dir(hookDir))
	if err := mgr.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	h, err := mgr.Get("notify-send")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	// An unknown event must come back as a failure response, not a crash.
	resp, err := NewExecutor(5*time.Second).Execute(context.Background(), h, &Request{
		Event: "bogus",
		Alert: alert.Alert{Title: "ALARM"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.Success {
		t.Error("expected failure for unknown event")
	}
}

// findHookDir looks for a built hook under the repository's plugins directory.
func findHookDir(name string) string {
	candidates := []string{
		filepath.Join("..", "..", "plugins", name),
		filepath.Join("plugins", name),
	}
	for _, dir := range candidates {
		if _, err := os.Stat(filepath.Join(dir, "notify-send-hook")); err == nil {
			abs, err := filepath.Abs(dir)
			if err == nil {
				return abs
			}
		}
	}
	return ""
}
