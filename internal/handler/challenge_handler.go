package handler

import (
	"net/http"

	"runquest/internal/service"

	"github.com/gin-gonic/gin"
)

type ChallengeHandler struct {
	catalog *service.CatalogService
}

func NewChallengeHandler(catalog *service.CatalogService) *ChallengeHandler {
	return &ChallengeHandler{catalog: catalog}
}

// ListChallenges 全部关卡
func (h *ChallengeHandler) ListChallenges(c *gin.Context) {
	challenges, err := h.catalog.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"challenges": challenges})
}

// ListTiers 按层级分组
func (h *ChallengeHandler) ListTiers(c *gin.Context) {
	tiers, err := h.catalog.Tiers(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tiers": tiers})
}
