package handler

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// indexTmpl is the management page: an add form plus the list of registered
// streams with watch/remove actions. It talks to the JSON API from inline JS,
// so it needs no assets beyond this one response.
var indexTmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>Stream Manager</title></head>
<body>
    <h1>Stream Manager</h1>
    <div>
        <form id="addForm">
            <input type="text" name="url" placeholder="RTSP URL" required />
            <input type="text" name="quality" placeholder="Quality (1-31)" title="1 is the highest quality, 31 the lowest." />
            <input type="text" name="resolution" placeholder="Resolution (e.g., 640x480)" />
            <input type="number" name="fps" placeholder="FPS (e.g., 15)" />
            <button type="submit">Add Stream</button>
        </form>
    </div>
    <ul>
        {{range .Streams}}
        <li>
            <div>
                <strong>Stream {{.ID}}:</strong> {{.URL}}
                <a href="/video_feed/{{.ID}}">Watch Stream</a>
                <button onclick="removeStream({{.ID}})">Remove</button>
            </div>
        </li>
        {{end}}
    </ul>
    <script>
        document.getElementById('addForm').onsubmit = function(e) {
            e.preventDefault();
            const formData = new FormData(this);
            const body = { url: formData.get('url') };
            if (formData.get('quality')) body.quality = formData.get('quality');
            if (formData.get('resolution')) body.resolution = formData.get('resolution');
            if (formData.get('fps')) body.fps = Number(formData.get('fps'));
            fetch('/api/streams', {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify(body)
            }).then(response => {
                if (response.ok) {
                    location.reload();
                } else {
                    response.json().then(data => alert(data.message));
                }
            });
        };
        function removeStream(id) {
            fetch('/api/streams/' + id, { method: 'DELETE' })
            .then(response => {
                if (response.ok) {
                    location.reload();
                }
            });
        }
    </script>
</body>
</html>
`))

// IndexHandler renders the HTML management page.
type IndexHandler struct {
	log   *zap.Logger
	store StreamStore
}

// NewIndexHandler constructs an IndexHandler instance.
func NewIndexHandler(log *zap.Logger, store StreamStore) *IndexHandler {
	return &IndexHandler{
		log:   log.Named("index"),
		store: store,
	}
}

// Index handles GET /.
//
// Status Codes:
//   - 200 OK → HTML page listing registered streams
//   - 500 Internal Server Error
func (h *IndexHandler) Index(c *gin.Context) {
	cfgs, err := h.store.GetAll(c.Request.Context())
	if err != nil {
		c.Error(err)
		c.String(http.StatusInternalServerError, "failed to load streams")
		return
	}

	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(c.Writer, gin.H{"Streams": cfgs}); err != nil {
		h.log.Error("render index", zap.Error(err))
	}
}
