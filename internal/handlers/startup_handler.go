package handlers

import (
	"encoding/json"
	"html/template"
	"log"
	"net/http"
	"sync"
)

// Startup step names, completed in order by the server
const (
	StepDatabase   = "Database connection"
	StepMigrations = "Running migrations"
	StepTemplates  = "Loading templates"
	StepServices   = "Initializing services"
	StepReady      = "Server ready"
)

// StartupStatus tracks the initialization progress
type StartupStatus struct {
	mu       sync.RWMutex
	ready    bool
	current  string
	progress int
	steps    []StartupStep
}

type StartupStep struct {
	Name      string `json:"name"`
	Completed bool   `json:"completed"`
}

// statusSnapshot is a lock-free copy used for rendering
type statusSnapshot struct {
	Ready    bool          `json:"ready"`
	Current  string        `json:"current"`
	Progress int           `json:"progress"`
	Steps    []StartupStep `json:"steps"`
}

// NewStartupStatus returns a tracker with every step pending
func NewStartupStatus() *StartupStatus {
	s := &StartupStatus{current: "Initializing..."}
	for _, name := range []string{StepDatabase, StepMigrations, StepTemplates, StepServices, StepReady} {
		s.steps = append(s.steps, StartupStep{Name: name})
	}
	return s
}

// SetCurrentStep updates the current initialization step
func (s *StartupStatus) SetCurrentStep(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = step
}

// CompleteStep marks a step as completed and updates progress
func (s *StartupStatus) CompleteStep(stepName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.steps {
		if s.steps[i].Name == stepName {
			s.steps[i].Completed = true
			break
		}
	}

	completed := 0
	for _, step := range s.steps {
		if step.Completed {
			completed++
		}
	}
	s.progress = (completed * 100) / len(s.steps)
}

// MarkReady marks the server as fully initialized
func (s *StartupStatus) MarkReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.steps {
		s.steps[i].Completed = true
	}
	s.ready = true
	s.current = StepReady
	s.progress = 100
}

// IsReady returns whether the server is fully initialized
func (s *StartupStatus) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

func (s *StartupStatus) snapshot() statusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return statusSnapshot{
		Ready:    s.ready,
		Current:  s.current,
		Progress: s.progress,
		Steps:    append([]StartupStep(nil), s.steps...),
	}
}

// Health reports readiness as JSON: 200 once ready, 503 before
func (s *StartupStatus) Health(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot()
	w.Header().Set("Content-Type", "application/json")
	if !snap.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		log.Printf("Error encoding health status: %v", err)
	}
}

// Gate serves the startup page for every request except the health check
// until the server is ready
func (s *StartupStatus) Gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.IsReady() || r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}
		s.ShowStartupStatus(w, r)
	})
}

var startupTemplate = template.Must(template.New("startup").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
	<meta http-equiv="refresh" content="2">
	<title>Member Directory - Starting Up</title>
	<style>
		body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Arial, sans-serif; background: #f4f5f7; display: flex; align-items: center; justify-content: center; min-height: 100vh; margin: 0; }
		.container { background: white; border-radius: 12px; padding: 32px; box-shadow: 0 10px 30px rgba(0,0,0,0.1); max-width: 460px; width: 100%; }
		h1 { text-align: center; margin: 0 0 20px; color: #333; }
		.progress-bar { height: 10px; background: #e0e0e0; border-radius: 5px; overflow: hidden; margin-bottom: 16px; }
		.progress-fill { height: 100%; background: #2f6fde; }
		ul { list-style: none; padding: 0; }
		li { padding: 8px 0; border-bottom: 1px solid #f0f0f0; color: #666; }
		li.completed { color: #10b981; }
		.current { text-align: center; color: #2f6fde; font-style: italic; margin-top: 16px; }
	</style>
</head>
<body>
	<div class="container">
		<h1>Member Directory</h1>
		<div class="progress-bar"><div class="progress-fill" style="width: {{.Progress}}%"></div></div>
		<ul>
			{{range .Steps}}<li class="{{if .Completed}}completed{{end}}">{{if .Completed}}✓{{else}}○{{end}} {{.Name}}</li>{{end}}
		</ul>
		<div class="current">{{.Current}}</div>
	</div>
</body>
</html>`))

// ShowStartupStatus displays the startup status page
func (s *StartupStatus) ShowStartupStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot()
	if snap.Ready {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	if err := startupTemplate.Execute(w, snap); err != nil {
		log.Printf("Error rendering startup page: %v", err)
	}
}
