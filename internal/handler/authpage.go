package handler

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AuthPageHandler serves the local login surface. The page opens the hosted
// sign-in in a popup, relays its postMessage result to /ws/auth, and then
// closes itself. It is the websocket counterpart of the handshake attempt.
type AuthPageHandler struct {
	// LoginURL is the hosted sign-in page the popup navigates to.
	LoginURL string
}

var authPageTmpl = template.Must(template.New("auth").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Q-SCI Login</title></head>
<body>
<p id="status">Opening sign-in&hellip;</p>
<script>
(function () {
  var attempt = new URLSearchParams(location.search).get("attempt");
  var status = document.getElementById("status");
  if (!attempt) {
    status.textContent = "Missing attempt ID.";
    return;
  }
  var proto = location.protocol === "https:" ? "wss:" : "ws:";
  var ws = new WebSocket(proto + "//" + location.host + "/ws/auth?attempt=" + encodeURIComponent(attempt));
  var popup = null;
  ws.onopen = function () {
    popup = window.open({{.LoginURL}}, "qsci-signin", "width=480,height=640");
    if (!popup) {
      ws.send(JSON.stringify({type: "AUTH_ERROR", message: "Popup blocked"}));
      status.textContent = "Popup blocked. Allow popups and retry.";
    }
  };
  window.addEventListener("message", function (ev) {
    var msg = ev.data;
    if (!msg || (msg.type !== "AUTH_SUCCESS" && msg.type !== "AUTH_ERROR")) {
      return;
    }
    ws.send(JSON.stringify(msg));
  });
  ws.onmessage = function (ev) {
    var msg = JSON.parse(ev.data);
    if (msg.type === "ACK") {
      status.textContent = "Done. You can close this window.";
      if (popup && !popup.closed) popup.close();
      window.close();
    }
  };
})();
</script>
</body>
</html>
`))

func (h *AuthPageHandler) Serve(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	_ = authPageTmpl.Execute(c.Writer, gin.H{"LoginURL": h.LoginURL})
}
