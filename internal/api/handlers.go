package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Iron-Ham/worklog/internal/codec"
	"github.com/Iron-Ham/worklog/internal/errors"
	"github.com/Iron-Ham/worklog/internal/export"
	"github.com/Iron-Ham/worklog/internal/model"
	"github.com/Iron-Ham/worklog/internal/session"
	"github.com/Iron-Ham/worklog/internal/validate"
)

const defaultExportLimit = 100

// exportQuery is the query string of the export endpoints.
type exportQuery struct {
	Format          string `form:"format"`
	IncludeArchived bool   `form:"include_archived"`
	Limit           *int   `form:"limit" validate:"omitempty,min=1,max=500"`
}

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Time: s.now().Format(time.RFC3339)})
}

func (s *Server) handleOverview(c *gin.Context) {
	ov, err := s.deps.Overviews.Build(c.Request.Context())
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, ov)
}

func (s *Server) handleSession(c *gin.Context) {
	sess, err := s.lookupSession(c)
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// lookupSession reads the :id session, falling back to the archive.
func (s *Server) lookupSession(c *gin.Context) (*model.Session, error) {
	id := c.Param("id")
	if err := validate.SessionID(id); err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	sess, err := s.deps.Sessions.Get(ctx, id)
	if errors.Is(err, errors.ErrNotFound) {
		return s.deps.Sessions.GetArchived(ctx, id)
	}
	return sess, err
}

func (s *Server) bindExportQuery(c *gin.Context) (exportQuery, export.Format, error) {
	var q exportQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return q, "", errors.NewValidationError(fmt.Sprintf("invalid query: %v", err))
	}
	if err := validate.Struct(q); err != nil {
		return q, "", err
	}
	format, err := export.ParseFormat(q.Format)
	return q, format, err
}

func (s *Server) handleExportSession(c *gin.Context) {
	_, format, err := s.bindExportQuery(c)
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	sess, err := s.lookupSession(c)
	if err != nil {
		fail(c, s.logger, err)
		return
	}

	var body []byte
	if format == export.FormatMarkdown {
		body = []byte(export.SessionMarkdown(sess, 1))
	} else if body, err = codec.Marshal(export.Session(sess)); err != nil {
		fail(c, s.logger, err)
		return
	}
	attach(c, sess.SessionID+format.Ext(), format, body)
}

func (s *Server) handleExportProject(c *gin.Context) {
	q, format, err := s.bindExportQuery(c)
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	slug := c.Param("slug")
	if err := validate.ProjectSlug(slug); err != nil {
		fail(c, s.logger, err)
		return
	}

	ctx := c.Request.Context()
	sessions, err := s.deps.Sessions.List(ctx, session.Filter{ProjectSlug: slug, IncludeArchived: q.IncludeArchived})
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	if len(sessions) == 0 {
		fail(c, s.logger, errors.NewNotFoundError("project", slug))
		return
	}
	limit := defaultExportLimit
	if q.Limit != nil {
		limit = *q.Limit
	}
	if len(sessions) > limit {
		sessions = sessions[:limit]
	}

	name := s.projectName(c, slug)
	var body []byte
	if format == export.FormatMarkdown {
		body = []byte(export.ProjectMarkdown(name, sessions))
	} else if body, err = codec.Marshal(export.Project(name, sessions, s.now())); err != nil {
		fail(c, s.logger, err)
		return
	}
	attach(c, slug+"-sessions"+format.Ext(), format, body)
}

// projectName is the registered display name, or the slug for projects
// that only exist through their sessions.
func (s *Server) projectName(c *gin.Context, slug string) string {
	if s.deps.Projects == nil {
		return slug
	}
	reg, err := s.deps.Projects.Project(c.Request.Context(), slug)
	if err != nil || reg.Name == "" {
		return slug
	}
	return reg.Name
}

func (s *Server) handleProjectState(c *gin.Context) {
	slug := c.Param("slug")
	if err := validate.ProjectSlug(slug); err != nil {
		fail(c, s.logger, err)
		return
	}
	ps, err := s.deps.States.Get(c.Request.Context(), slug)
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, ps)
}

func attach(c *gin.Context, filename string, format export.Format, body []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, format.ContentType(), body)
}
