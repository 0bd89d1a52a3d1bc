package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListBookings(c *gin.Context) {
	bookings, err := s.fulfillmentSvc.ListBookings(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

func (s *Server) ListOrders(c *gin.Context) {
	orders, err := s.fulfillmentSvc.ListOrders(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) CompleteBooking(c *gin.Context) {
	booking, res, err := s.fulfillmentSvc.CompleteBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"booking":       booking,
		"transitioned":  res.Transitioned,
		"pointsGranted": res.PointsGranted,
	})
}

func (s *Server) DeliverOrder(c *gin.Context) {
	order, res, err := s.fulfillmentSvc.DeliverOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order":         order,
		"transitioned":  res.Transitioned,
		"pointsGranted": res.PointsGranted,
	})
}
