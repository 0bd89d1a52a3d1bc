package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type submitFeedbackRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (s *Server) SubmitFeedback(c *gin.Context) {
	var req submitFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	fb, err := s.feedbackSvc.Submit(c.Request.Context(), c.Param("id"), req.Rating, req.Comment)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, fb)
}

func (s *Server) ListFeedback(c *gin.Context) {
	items, err := s.feedbackSvc.ListByCustomer(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"feedback": items})
}

func (s *Server) ApproveFeedback(c *gin.Context) {
	fb, points, err := s.feedbackSvc.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"feedback":      fb,
		"pointsGranted": points,
	})
}

func (s *Server) RejectFeedback(c *gin.Context) {
	fb, err := s.feedbackSvc.Reject(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, fb)
}
