package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/sponsornet/internal/audit/domain"
	"github.com/smallbiznis/sponsornet/pkg/db/pagination"
)

type listAuditLogsQuery struct {
	PageToken    string `form:"page_token"`
	PageSize     int    `form:"page_size"`
	Action       string `form:"action"`
	TargetType   string `form:"target_type"`
	TargetID     string `form:"target_id"`
	ResourceType string `form:"resource_type"`
	ResourceID   string `form:"resource_id"`
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	var query listAuditLogsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	targetType := strings.TrimSpace(query.TargetType)
	if targetType == "" {
		targetType = strings.TrimSpace(query.ResourceType)
	}
	targetID := strings.TrimSpace(query.TargetID)
	if targetID == "" {
		targetID = strings.TrimSpace(query.ResourceID)
	}
	if targetID != "" {
		if _, err := parseSnowflakeID(targetID); err != nil {
			AbortWithError(c, newValidationError("target_id", "invalid_target_id", "invalid target_id"))
			return
		}
	}

	resp, err := s.auditSvc.List(c.Request.Context(), auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		Action:     strings.TrimSpace(query.Action),
		TargetType: targetType,
		TargetID:   targetID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.AuditLogs, "page_info": resp.PageInfo})
}
