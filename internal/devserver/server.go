// Package devserver is an in-memory implementation of the issue REST API for
// local development and tests.
package devserver

import (
	"io"
	"net/http"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"planeview/internal/model"
)

type projectKey struct {
	workspace string
	project   string
}

type projectData struct {
	issues  map[string]*model.Issue
	order   []string
	states  []model.State
	nextSeq int
}

type Server struct {
	mu       sync.RWMutex
	projects map[projectKey]*projectData
	apiKey   string
	log      *logrus.Entry
	validate *validator.Validate
	now      func() time.Time
}

type Option func(*Server)

// WithAPIKey makes every request require the X-API-Key header.
func WithAPIKey(key string) Option {
	return func(s *Server) { s.apiKey = key }
}

func WithLogger(log *logrus.Entry) Option {
	return func(s *Server) { s.log = log }
}

func New(opts ...Option) *Server {
	s := &Server{
		projects: map[projectKey]*projectData{},
		validate: validator.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		s.log = logrus.NewEntry(l)
	}
	return s
}

// DefaultStates are the states a project gets when seeded without any.
func DefaultStates(project string) []model.State {
	return []model.State{
		{ID: uuid.NewString(), ProjectID: project, Name: "Backlog", Group: "backlog", Color: "#858e96", Sequence: 15000},
		{ID: uuid.NewString(), ProjectID: project, Name: "Todo", Group: "unstarted", Color: "#3f76ff", Sequence: 30000},
		{ID: uuid.NewString(), ProjectID: project, Name: "In Progress", Group: "started", Color: "#f59e0b", Sequence: 45000},
		{ID: uuid.NewString(), ProjectID: project, Name: "Done", Group: "completed", Color: "#16a34a", Sequence: 60000},
	}
}

// Seed adds states and issues to a project, creating it if needed.
func (s *Server) Seed(workspace, project string, states []model.State, issues []model.Issue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.projectLocked(workspace, project)
	p.states = append(p.states, states...)
	for _, is := range issues {
		is := is.Clone()
		if is.ID == "" {
			is.ID = uuid.NewString()
		}
		p.nextSeq++
		if is.SequenceID == 0 {
			is.SequenceID = p.nextSeq
		}
		is.ProjectID = project
		s.attachStateLocked(p, &is)
		if _, exists := p.issues[is.ID]; !exists {
			p.order = append(p.order, is.ID)
		}
		p.issues[is.ID] = &is
	}
}

func (s *Server) projectLocked(workspace, project string) *projectData {
	k := projectKey{workspace: workspace, project: project}
	p, ok := s.projects[k]
	if !ok {
		p = &projectData{issues: map[string]*model.Issue{}}
		s.projects[k] = p
	}
	return p
}

func (s *Server) attachStateLocked(p *projectData, is *model.Issue) {
	if is.StateID == "" {
		is.StateDetail = nil
		return
	}
	for _, st := range p.states {
		if st.ID == is.StateID {
			is.StateDetail = st.Detail()
			return
		}
	}
}

// Handler returns the gin engine serving the API.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests(), s.requireAPIKey())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	p := r.Group("/api/v1/workspaces/:workspace/projects/:project")
	p.GET("/issues/", s.listIssues)
	p.POST("/issues/", s.createIssue)
	p.PATCH("/issues/:issue/", s.patchIssue)
	p.DELETE("/issues/:issue/", s.deleteIssue)
	p.POST("/issues/:issue/archive/", s.archiveIssue)
	p.POST("/issues/:issue/modules/", s.changeModules)
	p.GET("/states/", s.listStates)
	p.PATCH("/states/:state/", s.patchState)
	p.GET("/cycles/:cycle/cycle-issues/", s.listCycleIssues)
	p.POST("/cycles/:cycle/cycle-issues/", s.addCycleIssues)
	p.GET("/modules/:module/module-issues/", s.listModuleIssues)
	return r
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Info("request")
	}
}

func (s *Server) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.apiKey != "" && c.GetHeader("X-API-Key") != s.apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}

func key(c *gin.Context) projectKey {
	return projectKey{workspace: c.Param("workspace"), project: c.Param("project")}
}

func (s *Server) listIssues(c *gin.Context) {
	filters := map[string][]string{}
	for _, name := range []string{"priority", "state", "cycle", "module"} {
		if v := strings.TrimSpace(c.Query(name)); v != "" {
			filters[name] = strings.Split(v, ",")
		}
	}
	includeArchived := c.Query("archived") == "true"

	c.JSON(http.StatusOK, gin.H{"results": s.selectIssues(key(c), func(is *model.Issue) bool {
		if is.Archived() && !includeArchived {
			return false
		}
		if want, ok := filters["priority"]; ok && !slices.Contains(want, string(is.Priority)) {
			return false
		}
		if want, ok := filters["state"]; ok && !slices.Contains(want, is.StateID) {
			return false
		}
		if want, ok := filters["cycle"]; ok && !slices.Contains(want, is.CycleID) {
			return false
		}
		if want, ok := filters["module"]; ok && !slices.ContainsFunc(want, func(m string) bool { return slices.Contains(is.ModuleIDs, m) }) {
			return false
		}
		return true
	})})
}

func (s *Server) selectIssues(k projectKey, keep func(*model.Issue) bool) []model.Issue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.Issue{}
	p, ok := s.projects[k]
	if !ok {
		return out
	}
	for _, id := range p.order {
		if is := p.issues[id]; keep(is) {
			out = append(out, is.Clone())
		}
	}
	return out
}

func (s *Server) createIssue(c *gin.Context) {
	var body model.IssuePatch
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	k := key(c)
	now := s.now().UTC()
	is := model.Issue{ID: uuid.NewString(), ProjectID: k.project, CreatedAt: now, UpdatedAt: now}
	body.Apply(&is)
	if err := s.validate.Struct(is); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	p := s.projectLocked(k.workspace, k.project)
	p.nextSeq++
	is.SequenceID = p.nextSeq
	if body.SortOrder == nil {
		is.SortOrder = float64(65535 * p.nextSeq)
	}
	s.attachStateLocked(p, &is)
	p.issues[is.ID] = &is
	p.order = append(p.order, is.ID)
	out := is.Clone()
	s.mu.Unlock()

	c.JSON(http.StatusCreated, out)
}

// withIssue runs fn on the addressed issue under the write lock, answering
// 404 when it doesn't exist.
func (s *Server) withIssue(c *gin.Context, fn func(p *projectData, is *model.Issue) (int, any)) {
	s.mu.Lock()
	p, ok := s.projects[key(c)]
	var is *model.Issue
	if ok {
		is = p.issues[c.Param("issue")]
	}
	if is == nil {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"error": "issue not found"})
		return
	}
	status, body := fn(p, is)
	s.mu.Unlock()
	if body == nil {
		c.Status(status)
		return
	}
	c.JSON(status, body)
}

func (s *Server) patchIssue(c *gin.Context) {
	var body model.IssuePatch
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	s.withIssue(c, func(p *projectData, is *model.Issue) (int, any) {
		next := is.Clone()
		body.Apply(&next)
		if err := s.validate.Struct(next); err != nil {
			return http.StatusBadRequest, gin.H{"error": err.Error()}
		}
		next.UpdatedAt = s.now().UTC()
		s.attachStateLocked(p, &next)
		*is = next
		return http.StatusOK, is.Clone()
	})
}

func (s *Server) deleteIssue(c *gin.Context) {
	s.withIssue(c, func(p *projectData, is *model.Issue) (int, any) {
		delete(p.issues, is.ID)
		p.order = slices.DeleteFunc(p.order, func(id string) bool { return id == is.ID })
		return http.StatusNoContent, nil
	})
}

func (s *Server) archiveIssue(c *gin.Context) {
	s.withIssue(c, func(_ *projectData, is *model.Issue) (int, any) {
		at := s.now().UTC()
		is.ArchivedAt = &at
		return http.StatusOK, gin.H{"archived_at": at}
	})
}

type changeModulesRequest struct {
	Modules        []string `json:"modules"`
	RemovedModules []string `json:"removed_modules"`
}

func (s *Server) changeModules(c *gin.Context) {
	var body changeModulesRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	s.withIssue(c, func(_ *projectData, is *model.Issue) (int, any) {
		next := slices.DeleteFunc(slices.Clone(is.ModuleIDs), func(m string) bool { return slices.Contains(body.RemovedModules, m) })
		for _, m := range body.Modules {
			if !slices.Contains(next, m) {
				next = append(next, m)
			}
		}
		is.ModuleIDs = next
		return http.StatusOK, is.Clone()
	})
}

func (s *Server) listStates(c *gin.Context) {
	s.mu.RLock()
	var out []model.State
	if p, ok := s.projects[key(c)]; ok {
		out = slices.Clone(p.states)
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	if out == nil {
		out = []model.State{}
	}
	c.JSON(http.StatusOK, out)
}

type patchStateRequest struct {
	Name     *string  `json:"name" validate:"omitempty,min=1,max=255"`
	Sequence *float64 `json:"sequence"`
}

func (s *Server) patchState(c *gin.Context) {
	var body patchStateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := s.validate.Struct(body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[key(c)]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "state not found"})
		return
	}
	for i := range p.states {
		st := &p.states[i]
		if st.ID != c.Param("state") {
			continue
		}
		if body.Name != nil {
			st.Name = *body.Name
		}
		if body.Sequence != nil {
			st.Sequence = *body.Sequence
		}
		for _, is := range p.issues {
			if is.StateID == st.ID {
				is.StateDetail = st.Detail()
			}
		}
		c.JSON(http.StatusOK, *st)
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "state not found"})
}

type addCycleIssuesRequest struct {
	Issues []string `json:"issues" validate:"required,min=1,dive,required"`
}

func (s *Server) addCycleIssues(c *gin.Context) {
	var body addCycleIssuesRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := s.validate.Struct(body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cycle := c.Param("cycle")

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[key(c)]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "issue not found"})
		return
	}
	for _, id := range body.Issues {
		if _, ok := p.issues[id]; !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "issue not found: " + id})
			return
		}
	}
	for _, id := range body.Issues {
		p.issues[id].CycleID = cycle
	}
	c.JSON(http.StatusOK, gin.H{"issues": body.Issues})
}

func (s *Server) listCycleIssues(c *gin.Context) {
	cycle := c.Param("cycle")
	c.JSON(http.StatusOK, s.selectIssues(key(c), func(is *model.Issue) bool {
		return !is.Archived() && is.CycleID == cycle
	}))
}

func (s *Server) listModuleIssues(c *gin.Context) {
	module := c.Param("module")
	c.JSON(http.StatusOK, s.selectIssues(key(c), func(is *model.Issue) bool {
		return !is.Archived() && slices.Contains(is.ModuleIDs, module)
	}))
}
