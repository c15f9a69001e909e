package handshake

import (
	"os/exec"
	"runtime"
)

// BrowserOpener launches the authentication URL in the system browser. The
// browser window's liveness is observed through the websocket bridge, not
// the process, so Closed always reports false here.
type BrowserOpener struct{}

type browserSurface struct{}

func (browserSurface) Closed() bool { return false }
func (browserSurface) Close() error { return nil }

func (BrowserOpener) Open(url string) (Surface, error) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	go func() { _ = cmd.Wait() }()
	return browserSurface{}, nil
}
