package report

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"obelus/internal/display"
	"obelus/internal/logging"
	"obelus/internal/store"
)

// Server serves launch reports as HTML. One page lists launches; one page
// shows a launch with its jobs and steps.
type Server struct {
	Store store.Store
	Log   *slog.Logger

	mux *http.ServeMux
}

// NewServer returns a report server over the given store.
func NewServer(st store.Store, log *slog.Logger) *Server {
	if log == nil {
		log = logging.Discard()
	}
	s := &Server{Store: st, Log: log}
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /launch/{id}", s.handleLaunch)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	launches, err := s.Store.ListLaunches()
	if err != nil {
		s.Log.Error("list launches", "error", err)
		http.Error(w, "list launches: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.render(w, indexTmpl, map[string]any{"Launches": launches})
}

func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, err := Assemble(s.Store, id)
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.Log.Error("assemble report", "launch", id, "error", err)
		http.Error(w, "assemble report: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.render(w, launchTmpl, data)
}

func (s *Server) render(w http.ResponseWriter, t *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.Execute(w, data); err != nil {
		s.Log.Error("render template", "error", err)
	}
}

var tmplFuncs = template.FuncMap{
	"status":     display.Status,
	"statusIcon": display.StatusWithIcon,
	"stepName":   display.StepName,
	"entryLabel": display.EntryLabel,
}

var indexTmpl = template.Must(template.New("index").Funcs(tmplFuncs).Parse(`<!DOCTYPE html>
<html>
<head><title>obelus launches</title></head>
<body>
<h1 id="title">Launches</h1>
<table id="launches" border="1" cellpadding="4">
<tr><th>ID</th><th>Workflow</th><th>Build environment</th><th>Status</th><th>Started</th></tr>
{{range .Launches}}<tr>
<td><a href="/launch/{{.ID}}">{{.ID}}</a></td>
<td>{{.Workflow}}</td>
<td>{{.BuildEnvironment}}</td>
<td>{{status .Status}}</td>
<td>{{.StartedAt}}</td>
</tr>
{{end}}</table>
</body>
</html>
`))

var launchTmpl = template.Must(template.New("launch").Funcs(tmplFuncs).Parse(`<!DOCTYPE html>
<html>
<head><title>launch {{.Launch.ID}}</title></head>
<body>
<h1 id="title">Launch {{.Launch.ID}}</h1>
<p id="summary">
Workflow {{.Launch.Workflow}} — {{statusIcon .Launch.Status}}{{if .Launch.SkipReason}} ({{.Launch.SkipReason}}){{end}}<br>
Build environment {{.Launch.BuildEnvironment}}, python {{.Launch.PythonVersion}}<br>
{{if .Launch.Repository}}{{.Launch.Repository}} @ {{.Launch.Commit}}{{end}}
</p>
<table id="jobs" border="1" cellpadding="4">
<tr><th>Job</th><th>Status</th><th>Started</th><th>Ended</th></tr>
{{range .Jobs}}<tr>
<td>{{entryLabel .Job.Config .Job.Shard .Job.NumShards .Job.Runner}}</td>
<td>{{status .Job.Status}}</td>
<td>{{.Job.StartedAt}}</td>
<td>{{.Job.EndedAt}}</td>
</tr>
{{end}}</table>
{{range .Jobs}}
<h2>{{entryLabel .Job.Config .Job.Shard .Job.NumShards .Job.Runner}}</h2>
<table class="steps" border="1" cellpadding="4">
<tr><th>Step</th><th>Status</th><th>Detail</th></tr>
{{range .Steps}}<tr>
<td>{{stepName .Name}}</td>
<td>{{statusIcon .Status}}</td>
<td>{{.Error}}</td>
</tr>
{{end}}</table>
{{end}}
<p><a href="/">all launches</a></p>
</body>
</html>
`))
