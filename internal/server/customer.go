package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/glowhub/portal/internal/customer"
)

type registerCustomerRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	BirthDate string `json:"birthDate"`
	BranchID  string `json:"branchId"`
}

func (s *Server) RegisterCustomer(c *gin.Context) {
	var req registerCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	cust, award, err := s.customerSvc.Register(c.Request.Context(), customer.Customer{
		ID:        req.ID,
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		BirthDate: req.BirthDate,
		BranchID:  req.BranchID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"customer":       cust,
		"welcomeGranted": award.Granted,
		"wallet":         award.Wallet,
	})
}

func (s *Server) GetCustomer(c *gin.Context) {
	cust, err := s.customerSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cust)
}

func (s *Server) CheckBirthday(c *gin.Context) {
	award, err := s.customerSvc.CheckBirthday(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"granted": award.Granted,
		"wallet":  award.Wallet,
	})
}
