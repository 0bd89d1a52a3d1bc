package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/glowhub/portal/internal/catalog"
)

func (s *Server) ListServices(c *gin.Context) {
	items, err := s.catalogSvc.ListByKind(c.Request.Context(), catalog.KindService)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) ListProducts(c *gin.Context) {
	items, err := s.catalogSvc.ListByKind(c.Request.Context(), catalog.KindProduct)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
