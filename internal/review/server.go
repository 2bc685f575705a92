package review

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-contrib/multitemplate"
	"github.com/gin-gonic/gin"

	"github.com/a3tai/exam-dataset/internal/edits"
)

// Options configure the HTTP surface.
type Options struct {
	Host      string
	Port      int
	GinMode   string
	CropsDir  string
	JWTSecret string
	JWTIssuer string
	// ShutdownTimeout bounds graceful shutdown in Run.
	ShutdownTimeout time.Duration
}

// Server is the review HTTP server.
type Server struct {
	store  *Store
	opts   Options
	logger *log.Logger
	router *gin.Engine
}

// NewServer wires the routes. With a JWT secret every route except
// /healthz and /crops requires a bearer token.
func NewServer(store *Store, opts Options, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if opts.GinMode != "" {
		gin.SetMode(opts.GinMode)
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	s := &Server{store: store, opts: opts, logger: logger}

	router := gin.New()
	router.Use(gin.Recovery(), Logger(logger))
	router.HTMLRender = newRenderer()

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if info, err := os.Stat(opts.CropsDir); err == nil && info.IsDir() {
		router.Static("/crops", opts.CropsDir)
	}

	protected := router.Group("/")
	if opts.JWTSecret != "" {
		protected.Use(AuthMiddleware(opts.JWTSecret, opts.JWTIssuer, logger))
	}
	protected.GET("/", s.index)

	api := protected.Group("/api/v1")
	{
		api.GET("/records", s.listRecords)
		api.GET("/records/:id", s.getRecord)
		api.POST("/records/:id", s.updateRecord)
		api.POST("/apply", s.applyEdits)
		api.POST("/reload", s.reload)
		api.GET("/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, store.Stats())
		})
	}
	s.router = router
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Address is host:port.
func (s *Server) Address() string {
	return net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Address(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("Review server listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Println("Shutting down review server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("review server forced to shutdown: %w", err)
	}
	return nil
}

func filterFrom(c *gin.Context) Filter {
	kind := c.DefaultQuery("filter", FilterNeedsReview)
	if c.Query("needs_review") == "true" {
		kind = FilterNeedsReview
	}
	return Filter{Kind: kind, Query: c.Query("q"), Year: c.Query("year"), Group: c.Query("group")}
}

// GET /
func (s *Server) index(c *gin.Context) {
	f := filterFrom(c)
	c.HTML(http.StatusOK, "index", gin.H{
		"Items":   indexRows(s.store.List(f)),
		"Filter":  f,
		"Stats":   s.store.Stats(),
		"Dataset": s.store.DatasetPath(),
	})
}

// GET /api/v1/records
func (s *Server) listRecords(c *gin.Context) {
	items := s.store.List(filterFrom(c))
	c.JSON(http.StatusOK, gin.H{"count": len(items), "records": items})
}

// GET /api/v1/records/:id
func (s *Server) getRecord(c *gin.Context) {
	id := c.Param("id")
	rec, err := s.store.Merged(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Record not found: %s", id)})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"record":       rec,
		"patch":        s.store.Patch(id),
		"needs_review": edits.NeedsReview(rec),
	})
}

// POST /api/v1/records/:id accepts a JSON patch or a review form. With
// action=mark_reviewed the record is also marked reviewed.
func (s *Server) updateRecord(c *gin.Context) {
	id := c.Param("id")
	base, err := s.store.Base(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Record not found: %s", id)})
		return
	}

	var patch edits.Patch
	action := c.Query("action")
	if c.ContentType() == gin.MIMEJSON {
		if err := c.ShouldBindJSON(&patch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON patch"})
			return
		}
	} else {
		if err := c.Request.ParseForm(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid form"})
			return
		}
		patch = edits.PatchFromForm(base, edits.FormFromValues(c.Request.PostForm))
		if a := c.Request.PostForm.Get("action"); a != "" {
			action = a
		}
	}

	rec, err := s.store.Update(id, patch, action == "mark_reviewed")
	if err != nil {
		s.logger.Printf("Error saving edits for %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save edits"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": rec, "patch": s.store.Patch(id)})
}

// POST /api/v1/apply
func (s *Server) applyEdits(c *gin.Context) {
	onlyReviewed := c.Query("only_reviewed")
	if onlyReviewed == "" {
		onlyReviewed = c.PostForm("only_reviewed")
	}
	out, res, err := s.store.ApplyEdits(onlyReviewed == "on" || onlyReviewed == "true")
	if err != nil {
		s.logger.Printf("Error applying edits: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Apply failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"output": out, "records": res.Records, "patched": res.Patched})
}

// POST /api/v1/reload
func (s *Server) reload(c *gin.Context) {
	if err := s.store.Reload(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Reload failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.store.Stats())
}

type indexRow struct {
	ID          string
	Statement   string
	Answer      string
	NeedsReview bool
	Flags       []string
}

var flagKeys = []string{"ocr_short_text", "options_missing_or_extra", "key_mismatch", "answer_missing"}

func indexRows(recs []map[string]any) []indexRow {
	rows := make([]indexRow, 0, len(recs))
	for _, rec := range recs {
		row := indexRow{
			ID:          edits.RecordID(rec),
			Statement:   truncate(stringField(rec, "problem_statement"), 160),
			Answer:      stringField(rec, "answer"),
			NeedsReview: edits.NeedsReview(rec),
		}
		q, _ := rec["quality"].(map[string]any)
		for _, k := range flagKeys {
			if v, _ := q[k].(bool); v {
				row.Flags = append(row.Flags, k)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

const indexTemplate = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Review {{.Dataset}}</title>
<style>body{font-family:sans-serif;} td{padding:4px 8px;vertical-align:top;} .flag{color:#b00;}</style></head>
<body>
<h2>{{.Dataset}}</h2>
<p>{{.Stats.Total}} records, {{.Stats.Edited}} edited, {{.Stats.NeedsReview}} need review</p>
<form method="get" action="/">
<select name="filter">
<option value="needs_review"{{if eq .Filter.Kind "needs_review"}} selected{{end}}>needs review</option>
<option value="unreviewed"{{if eq .Filter.Kind "unreviewed"}} selected{{end}}>unreviewed</option>
<option value="all"{{if eq .Filter.Kind "all"}} selected{{end}}>all</option>
</select>
<input name="q" value="{{.Filter.Query}}" placeholder="search">
<input name="year" value="{{.Filter.Year}}" placeholder="year">
<input name="group" value="{{.Filter.Group}}" placeholder="group">
<button type="submit">Filter</button>
</form>
<table>
<tr><th>id</th><th>statement</th><th>answer</th><th>flags</th></tr>
{{range .Items}}<tr>
<td><a href="/api/v1/records/{{.ID}}">{{.ID}}</a></td>
<td>{{.Statement}}</td>
<td>{{.Answer}}</td>
<td class="flag">{{if .NeedsReview}}needs review{{end}}{{range .Flags}} {{.}}{{end}}</td>
</tr>{{end}}
</table>
</body></html>
`

func newRenderer() multitemplate.Renderer {
	r := multitemplate.NewRenderer()
	r.Add("index", template.Must(template.New("index").Parse(indexTemplate)))
	return r
}
