// Package api serves the local control API: transport commands, export
// jobs, a websocket event feed and the live export monitor.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/satindergrewal/lyricvid/internal/errs"
	"github.com/satindergrewal/lyricvid/internal/metrics"
	"github.com/satindergrewal/lyricvid/internal/playback"
	"github.com/satindergrewal/lyricvid/internal/session"
	"github.com/satindergrewal/lyricvid/internal/stream"
)

// Options configures a Server.
type Options struct {
	Debug        bool   // gin debug mode and request logging
	ExportFormat string // used when POST /api/export names none
}

// Server wraps the gin engine around one session.
type Server struct {
	sess   *session.Session
	opts   Options
	router *gin.Engine
	events *hub
	webrtc *stream.WebRTCHandler
}

// New builds the router and subscribes to the session's events.
func New(sess *session.Session, opts Options) *Server {
	if opts.ExportFormat == "" {
		opts.ExportFormat = "webm"
	}
	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	if opts.Debug {
		r.Use(gin.Logger())
	}

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	r.Use(cors.New(config))

	s := &Server{
		sess:   sess,
		opts:   opts,
		router: r,
		events: newHub(),
	}
	s.webrtc = stream.NewWebRTCHandler(s.monitor)
	sess.Subscribe(s.events.publish)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.router.Group("/api")
	{
		api.GET("/status", s.status)
		api.POST("/play", s.transport((*playback.Controller).Play))
		api.POST("/pause", s.transport((*playback.Controller).Pause))
		api.POST("/replay", s.transport((*playback.Controller).Replay))
		api.POST("/seek", s.seek)
		api.GET("/events", s.eventFeed)

		api.POST("/export", s.startExport)
		api.GET("/export", s.exportStatus)
		api.DELETE("/export", s.resetExport)
		api.GET("/export/download", s.download)
	}

	monitor := s.router.Group("/monitor")
	{
		monitor.POST("/offer", gin.WrapH(s.webrtc))
		monitor.GET("/stream", gin.WrapH(stream.NewHTTPHandler(s.monitor)))
	}

	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))
}

// monitor returns the running export's broadcaster, or nil.
func (s *Server) monitor() *stream.Broadcaster {
	if job := s.sess.Job(); job != nil {
		return job.Monitor()
	}
	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Printf("API listening on http://%s", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.webrtc.Close()
	s.events.close()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Printf("API stopped")
	return nil
}

// statusFor maps session and kind errors onto HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNoProject), errors.Is(err, session.ErrNoExport):
		return http.StatusNotFound
	case errors.Is(err, session.ErrExportNotStarted):
		return http.StatusPreconditionFailed
	case errors.Is(err, session.ErrExportBusy), errors.Is(err, session.ErrExportPending):
		return http.StatusConflict
	}
	switch errs.KindOf(err) {
	case errs.ErrInput:
		return http.StatusBadRequest
	case errs.ErrAsset:
		return http.StatusUnprocessableEntity
	case errs.ErrCollaborator:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": errs.Message(err)})
}
