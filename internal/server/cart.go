package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/glowhub/portal/internal/catalog"
)

func (s *Server) ListCartItems(c *gin.Context) {
	items := s.cartSvc.Items(c.Param("id"))
	var total int64
	for _, item := range items {
		total += item.Subtotal()
	}
	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"total": total,
	})
}

type addCartItemRequest struct {
	Kind   string `json:"kind"`
	ItemID string `json:"itemId"`
}

func (s *Server) AddCartItem(c *gin.Context) {
	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.cartSvc.AddItem(c.Request.Context(), c.Param("id"), catalog.Kind(req.Kind), req.ItemID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

type updateQuantityRequest struct {
	Quantity int64 `json:"quantity"`
}

func (s *Server) UpdateCartQuantity(c *gin.Context) {
	var req updateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.cartSvc.UpdateQuantity(c.Request.Context(), c.Param("id"), c.Param("itemId"), req.Quantity); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": s.cartSvc.Items(c.Param("id"))})
}

func (s *Server) RemoveCartItem(c *gin.Context) {
	if err := s.cartSvc.RemoveItem(c.Request.Context(), c.Param("id"), c.Param("itemId")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": s.cartSvc.Items(c.Param("id"))})
}
