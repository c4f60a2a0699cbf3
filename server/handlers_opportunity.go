package server

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/MikaelConecto/services-splitted-stacks/internal/auth"
	"github.com/MikaelConecto/services-splitted-stacks/internal/common"
	"github.com/MikaelConecto/services-splitted-stacks/internal/opportunity"
	"github.com/MikaelConecto/services-splitted-stacks/internal/store"
	"github.com/MikaelConecto/services-splitted-stacks/internal/tokens"
	"github.com/MikaelConecto/services-splitted-stacks/misc"
)

type opportunityHook struct {
	ContactID int64 `json:"contactId"`
	DealID    int64 `json:"dealId"`
}

// newOpportunityHook is the CRM webhook that starts the fan-out. The
// shared secret gates it; everything past that is idempotent, so the CRM
// retrying the delivery is harmless.
func newOpportunityHook(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.Cfg.HookSecret == "" || c.GetHeader("X-Hook-Secret") != s.Cfg.HookSecret {
			c.JSON(401, misc.StatusErr("unauthorized"))
			return
		}

		var hook opportunityHook
		if err := misc.BindJSON(c, &hook); err != nil || hook.ContactID == 0 || hook.DealID == 0 {
			c.JSON(400, misc.StatusErr("invalid hook payload"))
			return
		}

		rep, err := s.engine.Distribute(c.Request.Context(), hook.DealID, hook.ContactID)
		if err != nil {
			s.Alert(fmt.Sprintf("fan-out failed for opportunity %d", hook.DealID), err)
			c.JSON(500, misc.StatusErr(err.Error()))
			return
		}
		for _, f := range rep.Failures {
			s.Alert(fmt.Sprintf("fan-out recipient failed (opportunity %d, company %d, contact %d): %s",
				rep.OpportunityID, f.CompanyID, f.ContactID, f.Reason), nil)
		}
		c.JSON(200, rep)
	}
}

func acceptOpportunity(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := s.admission.Accept(c.Request.Context(), auth.GetUser(c),
			c.Param("opportunityId"), c.Param("companyId"), c.Param("answerType"))
		if err != nil {
			abortAdmission(c, err)
			return
		}
		c.JSON(200, gin.H{"message": out})
	}
}

func rejectOpportunity(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := s.admission.Reject(c.Request.Context(), auth.GetUser(c),
			c.Param("opportunityId"), c.Param("companyId"), c.Param("answerType"))
		if err != nil {
			abortAdmission(c, err)
			return
		}
		c.JSON(200, gin.H{"message": out})
	}
}

func getOwnedOpportunity(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, owned, err := s.query.FetchOwnedSnapshot(auth.GetUser(c), c.Param("trackingId"))
		if err != nil {
			abortAdmission(c, err)
			return
		}
		if !owned {
			c.JSON(200, gin.H{"message": common.OutcomeNotOwned})
			return
		}
		c.JSON(200, snap)
	}
}

func getOpportunityForNotification(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := s.query.FetchForNotification(auth.GetUser(c),
			c.Param("opportunityId"), c.Param("companyId"))
		if err != nil {
			abortAdmission(c, err)
			return
		}
		c.JSON(200, view)
	}
}

func getOpportunity(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(400, misc.StatusErr(misc.ErrMissingId.Error()))
			return
		}
		o, err := s.store.Opportunity(id)
		if err != nil {
			abortAdmission(c, err)
			return
		}
		c.JSON(200, o)
	}
}

func getNotifications(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("opportunityId"), 10, 64)
		if err != nil {
			c.JSON(400, misc.StatusErr(misc.ErrMissingId.Error()))
			return
		}
		rows, err := s.store.NotificationsByOpportunity(id)
		if err != nil {
			c.JSON(500, misc.StatusErr(err.Error()))
			return
		}
		c.JSON(200, rows)
	}
}

// abortAdmission maps the decision errors onto status codes; terminal
// outcomes never reach here, they are 200s with a message.
func abortAdmission(c *gin.Context, err error) {
	switch {
	case errors.Is(err, tokens.ErrInvalidToken):
		c.JSON(400, misc.StatusErr(err.Error()))
	case errors.Is(err, opportunity.ErrAuthorizationMismatch):
		c.JSON(401, misc.StatusErr(err.Error()))
	case errors.Is(err, opportunity.ErrNoPaymentConfigured):
		c.JSON(400, misc.StatusErr(err.Error()))
	case errors.Is(err, opportunity.ErrPaymentCaptureFailed):
		c.JSON(402, misc.StatusErr(err.Error()))
	case errors.Is(err, store.ErrOpportunityNotFound), errors.Is(err, store.ErrNotificationNotFound):
		c.JSON(404, misc.StatusErr(err.Error()))
	default:
		c.JSON(500, misc.StatusErr(err.Error()))
	}
}
