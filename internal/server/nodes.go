package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/sponsornet/internal/authorization"
	ledgerdomain "github.com/smallbiznis/sponsornet/internal/ledger/domain"
	networkdomain "github.com/smallbiznis/sponsornet/internal/network/domain"
)

func (s *Server) RegisterNode(c *gin.Context) {
	var req networkdomain.RegisterNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	userID, _ := userIDFromContext(c)
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		req.UserID = userID.String()
	}
	if req.UserID != userID.String() && !isAdmin(c) {
		AbortWithError(c, ErrForbidden)
		return
	}

	result, err := s.networkSvc.Register(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

func (s *Server) GetNode(c *gin.Context) {
	node, err := s.loadOwnedNode(c, c.Param("id"), authorization.ObjectNode, authorization.ActionNodeViewAny)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": node})
}

func (s *Server) GetBalance(c *gin.Context) {
	node, err := s.loadOwnedNode(c, c.Param("id"), authorization.ObjectStatement, authorization.ActionStatementViewAny)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	balance, err := s.ledgerSvc.GetBalance(c.Request.Context(), node.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": balance})
}

func (s *Server) ListStatements(c *gin.Context) {
	node, err := s.loadOwnedNode(c, c.Param("id"), authorization.ObjectStatement, authorization.ActionStatementViewAny)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req ledgerdomain.ListStatementsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.NodeID = node.ID.String()

	resp, err := s.ledgerSvc.ListStatements(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Statements, "page_info": resp.PageInfo})
}

func (s *Server) PreviewPlacement(c *gin.Context) {
	node, err := s.loadOwnedNode(c, c.Param("id"), authorization.ObjectNode, authorization.ActionNodeViewAny)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	placement, err := s.networkSvc.PreviewPlacement(c.Request.Context(), node.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": placement})
}

// Withdraw is owner-only; admins have no withdraw grant on foreign nodes.
func (s *Server) Withdraw(c *gin.Context) {
	node, err := s.networkSvc.GetNode(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if userID, _ := userIDFromContext(c); node.UserID != userID {
		AbortWithError(c, networkdomain.ErrNodeNotFound)
		return
	}

	var req ledgerdomain.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.NodeID = node.ID.String()

	statement, err := s.ledgerSvc.Withdraw(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": statement})
}

func (s *Server) ListPackages(c *gin.Context) {
	packages, err := s.catalogSvc.ListPackages(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": packages})
}
