package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/sponsornet/internal/authorization"
	networkdomain "github.com/smallbiznis/sponsornet/internal/network/domain"
	paymentdomain "github.com/smallbiznis/sponsornet/internal/payment/domain"
)

type failPaymentRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) InitiatePayment(c *gin.Context) {
	var req paymentdomain.InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.NodeID) == "" {
		AbortWithError(c, paymentdomain.ErrInvalidNodeID)
		return
	}

	node, err := s.loadOwnedNode(c, req.NodeID, authorization.ObjectNode, authorization.ActionNodeViewAny)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req.NodeID = node.ID.String()

	payment, err := s.paymentSvc.Initiate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": payment})
}

func (s *Server) GetPayment(c *gin.Context) {
	payment, err := s.loadOwnedPayment(c, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payment})
}

// UpdatePaymentStatus applies a status polled from the provider by a
// trusted operator or job. Members cannot reach it.
func (s *Server) UpdatePaymentStatus(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, paymentdomain.ErrInvalidPaymentID)
		return
	}

	var req paymentdomain.StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.PaymentID = id.String()

	updated, err := s.paymentSvc.ApplyProviderStatus(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": updated})
}

func (s *Server) ConfirmPayment(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, paymentdomain.ErrInvalidPaymentID)
		return
	}

	payment, err := s.paymentSvc.ConfirmSuccess(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payment})
}

func (s *Server) FailPayment(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, paymentdomain.ErrInvalidPaymentID)
		return
	}

	var req failPaymentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "failed by operator"
	}

	payment, err := s.paymentSvc.ConfirmFailure(c.Request.Context(), id, reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payment})
}

// loadOwnedPayment hides payments of foreign nodes behind not found.
func (s *Server) loadOwnedPayment(c *gin.Context, id string) (paymentdomain.Payment, error) {
	payment, err := s.paymentSvc.GetPayment(c.Request.Context(), id)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if _, err := s.loadOwnedNode(c, payment.NodeID.String(), authorization.ObjectNode, authorization.ActionNodeViewAny); err != nil {
		if errors.Is(err, networkdomain.ErrNodeNotFound) {
			return paymentdomain.Payment{}, paymentdomain.ErrPaymentNotFound
		}
		return paymentdomain.Payment{}, err
	}
	return payment, nil
}
