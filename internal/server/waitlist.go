package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	obsctx "github.com/smallbiznis/accessgate/internal/observability/context"
	waitlistdomain "github.com/smallbiznis/accessgate/internal/waitlist/domain"
)

const (
	waitlistCreated     = "created"
	waitlistExisting    = "existing"
	waitlistRateLimited = "rate_limited"
	waitlistInvalid     = "invalid"
	waitlistDisabled    = "disabled"
)

// @Summary      Join waitlist
// @Description  Adds an email to the waitlist; joining twice returns the existing entry
// @Tags         waitlist
// @Accept       json
// @Produce      json
// @Param        request body waitlistdomain.JoinRequest true "Join Waitlist Request"
// @Success      201  {object}  waitlistdomain.Entry
// @Success      200  {object}  waitlistdomain.Entry
// @Failure      422
// @Failure      429
// @Failure      503
// @Router       /waitlist/join [post]
func (s *Server) JoinWaitlist(c *gin.Context) {
	if !s.cfg.Waitlist.Enabled {
		s.metrics.IncWaitlist(waitlistDisabled)
		AbortWithError(c, ErrDisabled)
		return
	}

	ctx := c.Request.Context()
	if !s.limiter.Allow(ctx, obsctx.ClientKeyFromGin(c)) {
		s.metrics.IncWaitlist(waitlistRateLimited)
		AbortWithError(c, ErrRateLimited)
		return
	}

	var req waitlistdomain.JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.metrics.IncWaitlist(waitlistInvalid)
		AbortWithError(c, invalidRequestError())
		return
	}

	entry, created, err := s.waitlistSvc.Join(ctx, req)
	if err != nil {
		if errors.Is(err, waitlistdomain.ErrValidation) {
			s.metrics.IncWaitlist(waitlistInvalid)
		}
		AbortWithError(c, err)
		return
	}

	if created {
		s.metrics.IncWaitlist(waitlistCreated)
		c.JSON(http.StatusCreated, gin.H{"data": entry})
		return
	}
	s.metrics.IncWaitlist(waitlistExisting)
	c.JSON(http.StatusOK, gin.H{"data": entry})
}
