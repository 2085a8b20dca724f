package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/satindergrewal/lyricvid/internal/errs"
	"github.com/satindergrewal/lyricvid/internal/export"
	"github.com/satindergrewal/lyricvid/internal/playback"
	"github.com/satindergrewal/lyricvid/internal/session"
)

var errNoPreview = fmt.Errorf("%w: no preview is open", session.ErrNoProject)

func (s *Server) status(c *gin.Context) {
	resp := gin.H{"project": nil, "playback": nil, "export": nil}
	if p := s.sess.Project(); p != nil {
		project := gin.H{
			"song":    p.SongName,
			"creator": p.Creator,
			"aspect":  p.Aspect,
			"font":    p.Font,
			"mode":    p.Mode,
			"lines":   len(p.Timeline),
			"palette": p.Palette,
		}
		if p.Clip != nil {
			project["duration"] = p.Clip.Duration().Seconds()
		}
		resp["project"] = project
	}
	if pv := s.sess.Preview(); pv != nil {
		snap := pv.Controller.Snapshot()
		resp["playback"] = snap
		if idx := snap.ActiveLyricIndex; idx >= 0 {
			resp["lyric"] = pv.Controller.Timeline().Text(idx)
		}
	}
	if job := s.sess.Job(); job != nil {
		resp["export"] = job.Snapshot()
	}
	c.JSON(http.StatusOK, resp)
}

// transport wraps a controller command that takes no arguments.
func (s *Server) transport(cmd func(*playback.Controller) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		pv := s.sess.Preview()
		if pv == nil {
			abort(c, errNoPreview)
			return
		}
		if err := cmd(pv.Controller); err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, pv.Controller.Snapshot())
	}
}

func (s *Server) seek(c *gin.Context) {
	var req struct {
		Time *float64 `json:"time"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Time == nil {
		abort(c, errs.Input("seek needs a numeric \"time\""))
		return
	}
	pv := s.sess.Preview()
	if pv == nil {
		abort(c, errNoPreview)
		return
	}
	if err := pv.Controller.Seek(*req.Time); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, pv.Controller.Snapshot())
}

func (s *Server) startExport(c *gin.Context) {
	var req struct {
		Format string `json:"format"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, errs.Input("invalid export request: %v", err))
			return
		}
	}
	if req.Format == "" {
		req.Format = s.opts.ExportFormat
	}
	job, err := s.sess.RequestExport(req.Format)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job.Snapshot())
}

func (s *Server) exportStatus(c *gin.Context) {
	job := s.sess.Job()
	if job == nil {
		abort(c, session.ErrNoExport)
		return
	}
	c.JSON(http.StatusOK, job.Snapshot())
}

func (s *Server) resetExport(c *gin.Context) {
	if err := s.sess.ResetExport(); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) download(c *gin.Context) {
	if job := s.sess.Job(); job != nil && job.Status() != export.Done {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error":  fmt.Sprintf("export is %s", job.Status()),
			"status": job.Status(),
		})
		return
	}
	obj, filename, err := s.sess.Artifact()
	if err != nil {
		abort(c, err)
		return
	}
	defer obj.Body.Close()

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Header("Content-Type", obj.ContentType)
	if obj.ContentLength > 0 {
		c.Header("Content-Length", strconv.FormatInt(obj.ContentLength, 10))
	}
	c.Status(http.StatusOK)
	io.Copy(c.Writer, obj.Body)
}
