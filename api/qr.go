package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/openclaw/qr/render"
)

type generateRequest struct {
	Text   string `json:"text"`
	Size   int    `json:"size"`
	Margin *int   `json:"margin"`
	Dark   string `json:"dark"`
	Light  string `json:"light"`
	Level  string `json:"level"`
}

type generateResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	LogoError string `json:"logo_error,omitempty"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	PNG       string `json:"png"`
}

func (s *Server) toRenderRequest(g generateRequest) render.Request {
	margin := s.Defaults.Margin
	if g.Margin != nil {
		margin = *g.Margin
	}
	return render.Request{
		Text: g.Text,
		Options: render.Options{
			Size:   g.Size,
			Margin: margin,
			Dark:   g.Dark,
			Light:  g.Light,
			Level:  g.Level,
		},
	}
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.Session.Generate(r.Context(), s.toRenderRequest(req))
	if err != nil {
		writeRenderError(w, err)
		return
	}

	png, err := res.Surface.PNG()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := generateResponse{
		ID:     res.ID,
		Status: string(res.Status),
		Width:  res.Surface.Width(),
		Height: res.Surface.Height(),
		PNG:    base64.StdEncoding.EncodeToString(png),
	}
	if res.LogoErr != nil {
		resp.LogoError = res.LogoErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	art, err := s.Session.Download()
	if errors.Is(err, render.ErrNothingRendered) {
		writeError(w, http.StatusConflict, "generate a QR code before downloading")
		return
	}
	if err != nil {
		s.Log.Error("download failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not export the QR code, try again")
		return
	}

	s.Log.Info("qr downloaded", "filename", art.Filename, "bytes", len(art.PNG))
	writePNG(w, art.PNG, fmt.Sprintf("attachment; filename=%q", art.Filename))
}

// handleRenderPNG renders straight from query parameters without touching
// the session, so generated codes can be linked as images.
func (s *Server) handleRenderPNG(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := generateRequest{
		Text:  q.Get("text"),
		Dark:  q.Get("dark"),
		Light: q.Get("light"),
		Level: q.Get("level"),
	}
	var err error
	if v := q.Get("size"); v != "" {
		if req.Size, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "size must be an integer")
			return
		}
	}
	if v := q.Get("margin"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "margin must be an integer")
			return
		}
		req.Margin = &m
	}

	res, err := s.Session.Render(r.Context(), s.toRenderRequest(req))
	if err != nil {
		writeRenderError(w, err)
		return
	}
	png, err := res.Surface.PNG()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("X-QR-Status", string(res.Status))
	writePNG(w, png, "inline")
}

func (s *Server) handleGeneratorPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(generatorPageHTML))
}

func writePNG(w http.ResponseWriter, data []byte, disposition string) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func writeRenderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, render.ErrSuperseded):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, render.ErrSizeTooLarge), errors.Is(err, render.ErrSizeTooSmall):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

const generatorPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>OpenClaw QR Generator</title>
<style>
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
    background: #0a0a0a;
    color: #e0e0e0;
    display: flex;
    justify-content: center;
    align-items: center;
    min-height: 100vh;
  }
  .card {
    background: #1a1a1a;
    border: 1px solid #333;
    border-radius: 16px;
    padding: 40px;
    max-width: 520px;
    width: 100%;
  }
  h1 { font-size: 20px; font-weight: 600; margin-bottom: 24px; text-align: center; }
  label { display: block; font-size: 13px; color: #888; margin: 12px 0 4px; }
  input, select {
    width: 100%; padding: 8px; border-radius: 8px;
    border: 1px solid #333; background: #111; color: #e0e0e0;
  }
  .row { display: flex; gap: 12px; }
  .row > div { flex: 1; }
  .actions { display: flex; gap: 12px; margin-top: 24px; }
  button {
    flex: 1; padding: 10px; border: 0; border-radius: 8px;
    background: #4ade80; color: #0a0a0a; font-weight: 600; cursor: pointer;
  }
  button.secondary { background: #333; color: #e0e0e0; }
  #qr-container {
    margin: 24px auto 0;
    display: flex;
    align-items: center;
    justify-content: center;
    min-height: 64px;
  }
  #status { font-size: 13px; color: #888; margin-top: 12px; text-align: center; }
  .warn { color: #facc15 !important; }
</style>
</head>
<body>
<div class="card">
  <h1>QR Code Generator</h1>
  <label for="text">Text or URL</label>
  <input id="text" placeholder="Leave empty to use the scan tracker URL">
  <div class="row">
    <div><label for="size">Size (px)</label><input id="size" type="number" value="256" min="64" max="4096"></div>
    <div><label for="margin">Margin</label><input id="margin" type="number" value="4" min="0"></div>
  </div>
  <div class="row">
    <div><label for="colorDark">Dark</label><input id="colorDark" type="color" value="#000000"></div>
    <div><label for="colorLight">Light</label><input id="colorLight" type="color" value="#ffffff"></div>
    <div>
      <label for="ecLevel">Error correction</label>
      <select id="ecLevel">
        <option value="L">L</option>
        <option value="M">M</option>
        <option value="Q">Q</option>
        <option value="H" selected>H</option>
      </select>
    </div>
  </div>
  <div class="actions">
    <button id="generate">Generate</button>
    <button id="download" class="secondary">Download PNG</button>
  </div>
  <div id="qr-container"></div>
  <div id="status"></div>
</div>
<script>
(function() {
  var container = document.getElementById('qr-container');
  var statusEl = document.getElementById('status');
  var currentImg = null;

  function value(id) { return document.getElementById(id).value; }

  document.getElementById('generate').addEventListener('click', function() {
    var body = {
      text: value('text'),
      size: parseInt(value('size'), 10) || 0,
      margin: parseInt(value('margin'), 10),
      dark: value('colorDark'),
      light: value('colorLight'),
      level: value('ecLevel')
    };
    if (isNaN(body.margin)) delete body.margin;

    statusEl.className = '';
    statusEl.textContent = 'Generating...';
    fetch('/qr/generate', {
      method: 'POST',
      headers: { 'Content-Type': 'application/json' },
      body: JSON.stringify(body)
    })
      .then(function(r) { return r.json().then(function(d) { return { ok: r.ok, status: r.status, data: d }; }); })
      .then(function(res) {
        if (!res.ok) {
          if (res.status !== 409) console.error(res.data.error);
          statusEl.textContent = res.data.error || 'Generation failed';
          return;
        }
        if (!currentImg) {
          currentImg = document.createElement('img');
          currentImg.setAttribute('alt', 'QR Code');
          container.appendChild(currentImg);
        }
        currentImg.setAttribute('src', 'data:image/png;base64,' + res.data.png);
        if (res.data.status === 'without_logo') {
          statusEl.className = 'warn';
          statusEl.textContent = 'Rendered without logo: ' + res.data.logo_error;
        } else {
          statusEl.textContent = res.data.width + ' x ' + res.data.height;
        }
      })
      .catch(function(err) { console.error(err); statusEl.textContent = 'Connection error'; });
  });

  document.getElementById('download').addEventListener('click', function() {
    fetch('/qr/download')
      .then(function(r) {
        if (r.status === 409) {
          alert('Generate a QR code before downloading it.');
          return null;
        }
        if (!r.ok) {
          alert('Could not download the QR code. Try again.');
          return null;
        }
        var name = 'qr.png';
        var cd = r.headers.get('Content-Disposition') || '';
        var m = /filename="([^"]+)"/.exec(cd);
        if (m) name = m[1];
        return r.blob().then(function(b) { return { blob: b, name: name }; });
      })
      .then(function(file) {
        if (!file) return;
        var link = document.createElement('a');
        link.href = URL.createObjectURL(file.blob);
        link.download = file.name;
        document.body.appendChild(link);
        link.click();
        document.body.removeChild(link);
        URL.revokeObjectURL(link.href);
      })
      .catch(function() { alert('Could not download the QR code. Try again.'); });
  });
})();
</script>
</body>
</html>`
