package handlers

import (
	"github.com/gin-gonic/gin"

	"freshtrace-system/internal/reward"
)

type RewardsHandler struct {
	rewards *reward.Service
}

func NewRewardsHandler(svc *reward.Service) *RewardsHandler {
	return &RewardsHandler{rewards: svc}
}

func (h *RewardsHandler) Balance(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	balance, err := h.rewards.Balance(c.Request.Context(), ident)
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, balance)
}
