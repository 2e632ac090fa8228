// Package api serves benchmark results over HTTP: the latest report,
// run history, and the cross-run leaderboard, plus the static
// dashboard.
package api

import (
	"errors"
	"strings"

	"github.com/alfredivory/modelbench/internal/config"
	"github.com/alfredivory/modelbench/internal/leaderboard"
	"github.com/alfredivory/modelbench/internal/store"
	"github.com/gin-gonic/gin"
)

type Server struct {
	router  *gin.Engine
	store   store.Store
	config  *config.Config
	lbStore *leaderboard.Store
}

func NewServer(cfg *config.Config, st store.Store, lbStore *leaderboard.Store) (*Server, error) {
	r := gin.New()
	s := &Server{
		router:  r,
		store:   st,
		config:  cfg,
		lbStore: lbStore,
	}
	s.registerMiddleware()
	if err := s.registerRoutes(); err != nil {
		return nil, err
	}
	s.registerStatic()
	return s, nil
}

func (s *Server) Run(addr string) error {
	if s == nil || s.router == nil {
		return errors.New("api: nil server")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		addr = ":8080"
	}
	return s.router.Run(addr)
}
