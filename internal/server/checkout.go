package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/glowhub/portal/internal/checkout/domain"
)

func (s *Server) BeginCheckout(c *gin.Context) {
	res, err := s.checkoutSvc.Begin(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type submitShippingRequest struct {
	Address       string `json:"address"`
	City          string `json:"city"`
	Phone         string `json:"phone"`
	PaymentMethod string `json:"paymentMethod"`
}

func (s *Server) SubmitShipping(c *gin.Context) {
	var req submitShippingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.checkoutSvc.SubmitShipping(c.Request.Context(), c.Param("id"), checkoutdomain.ShippingInfo{
		Address:       req.Address,
		City:          req.City,
		Phone:         req.Phone,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}
