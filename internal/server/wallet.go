package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetWallet(c *gin.Context) {
	w, err := s.awardSvc.WalletFor(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (s *Server) ListTransactions(c *gin.Context) {
	txns, err := s.ledgerSvc.ListByCustomer(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

type redeemRequest struct {
	Points      int64  `json:"points"`
	Description string `json:"description"`
}

func (s *Server) RedeemPoints(c *gin.Context) {
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	w, err := s.awardSvc.Redeem(c.Request.Context(), c.Param("id"), req.Points, req.Description)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallet": w})
}
