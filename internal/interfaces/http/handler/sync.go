package handler

import (
	"context"
	"errors"
	"io"
	"strings"

	appsync "github.com/crm/backend/internal/application/worksync"
	"github.com/crm/backend/internal/domain/worksync"
	"github.com/crm/backend/internal/infrastructure/scheduler"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CompanySyncer runs on-demand reconciliation and reports scheduler state
type CompanySyncer interface {
	SyncNow(ctx context.Context, companyID uuid.UUID) (*appsync.CompanyReport, error)
	SweepNow(ctx context.Context) (*appsync.SweepReport, error)
	Status() scheduler.Status
}

// OrphanCleanup drops links whose issue no longer exists
type OrphanCleanup interface {
	CleanupCompany(ctx context.Context, companyID uuid.UUID) (int, error)
}

// EntityLinker manages the links of one entity
type EntityLinker interface {
	LinkIssue(ctx context.Context, companyID uuid.UUID, entityType worksync.EntityType, entityID uuid.UUID, req appsync.LinkRequest) (*worksync.ExternalLink, error)
	LinkExisting(ctx context.Context, companyID uuid.UUID, entityType worksync.EntityType, entityID uuid.UUID, issueKey string) (*worksync.ExternalLink, error)
	Unlink(ctx context.Context, companyID uuid.UUID, entityType worksync.EntityType, entityID uuid.UUID, issueKey string) error
}

// StatusPusher pushes an entity's stored status to its linked issues
type StatusPusher interface {
	PushStored(ctx context.Context, companyID uuid.UUID, entityType worksync.EntityType, entityID uuid.UUID) (*appsync.PushResult, error)
}

// SyncHandler serves the company-scoped sync API. Every route expects JWTAuth.
type SyncHandler struct {
	BaseHandler
	syncer  CompanySyncer
	cleaner OrphanCleanup
	linker  EntityLinker
	pusher  StatusPusher
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(syncer CompanySyncer, cleaner OrphanCleanup, linker EntityLinker, pusher StatusPusher) *SyncHandler {
	return &SyncHandler{syncer: syncer, cleaner: cleaner, linker: linker, pusher: pusher}
}

// SyncAll handles POST /sync/sync-all: a reconciliation pass for the caller's
// company followed by orphan cleanup. A cleanup failure is reported on the
// report, the pass result is still returned.
//
// SyncAll godoc
// @ID           syncAllCompany
// @Summary      Reconcile the company and drop orphaned links
// @Description  Re-pushes stored CRM status for every linked entity, then removes links whose issue is gone
// @Tags         sync
// @Produce      json
// @Success      200 {object} dto.Response{data=appsync.CompanyReport}
// @Failure      401 {object} dto.Response "Missing or invalid token"
// @Failure      500 {object} dto.Response "Internal error"
// @Security     BearerAuth
// @Router       /api/v1/sync/sync-all [post]
func (h *SyncHandler) SyncAll(c *gin.Context) {
	companyID, ok := h.company(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	shared, err := h.syncer.SyncNow(ctx, companyID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	// The report may be shared with coalesced callers
	report := *shared
	report.Errors = append([]string(nil), shared.Errors...)

	removed, err := h.cleaner.CleanupCompany(ctx, companyID)
	report.LinksRemoved = removed
	if err != nil {
		report.Errors = append(report.Errors, "orphan cleanup: "+err.Error())
	}
	h.Success(c, &report)
}

// SyncNow godoc
// @ID           syncNowCompany
// @Summary      Reconcile the company now
// @Description  Runs one synchronous reconciliation pass. Concurrent calls for the same company share the pass.
// @Tags         sync
// @Produce      json
// @Success      200 {object} dto.Response{data=appsync.CompanyReport}
// @Failure      401 {object} dto.Response "Missing or invalid token"
// @Failure      500 {object} dto.Response "Internal error"
// @Security     BearerAuth
// @Router       /api/v1/sync/sync-now [post]
func (h *SyncHandler) SyncNow(c *gin.Context) {
	companyID, ok := h.company(c)
	if !ok {
		return
	}
	report, err := h.syncer.SyncNow(c.Request.Context(), companyID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// CleanupOrphaned godoc
// @ID           cleanupOrphanedLinks
// @Summary      Drop orphaned links
// @Description  Removes links of the company whose tracker issue no longer exists
// @Tags         sync
// @Produce      json
// @Success      200 {object} dto.Response{data=CleanupResponse}
// @Failure      401 {object} dto.Response "Missing or invalid token"
// @Failure      503 {object} dto.Response "Tracker unavailable"
// @Failure      500 {object} dto.Response "Internal error"
// @Security     BearerAuth
// @Router       /api/v1/sync/cleanup-orphaned [post]
func (h *SyncHandler) CleanupOrphaned(c *gin.Context) {
	companyID, ok := h.company(c)
	if !ok {
		return
	}
	removed, err := h.cleaner.CleanupCompany(c.Request.Context(), companyID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, CleanupResponse{Removed: removed})
}

// Sweep handles POST /sync/scheduler/sweep: a synchronous sweep over every
// company. Only aggregate counts are returned since the caller is scoped to
// one company.
//
// Sweep godoc
// @ID           sweepAllCompanies
// @Summary      Run a reconciliation sweep now
// @Description  Sweeps every company synchronously, sharing an in-flight sweep. Returns aggregate counts only.
// @Tags         scheduler
// @Produce      json
// @Success      200 {object} dto.Response{data=SweepResponse}
// @Failure      401 {object} dto.Response "Missing or invalid token"
// @Failure      500 {object} dto.Response "Internal error"
// @Security     BearerAuth
// @Router       /api/v1/sync/scheduler/sweep [post]
func (h *SyncHandler) Sweep(c *gin.Context) {
	if _, ok := h.company(c); !ok {
		return
	}
	report, err := h.syncer.SweepNow(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, newSweepResponse(report))
}

// SchedulerStatus godoc
// @ID           getSchedulerStatus
// @Summary      Get scheduler status
// @Description  Reports whether the periodic loop runs, its interval and recent sweep summaries
// @Tags         scheduler
// @Produce      json
// @Success      200 {object} dto.Response{data=scheduler.Status}
// @Failure      401 {object} dto.Response "Missing or invalid token"
// @Security     BearerAuth
// @Router       /api/v1/sync/scheduler/status [get]
func (h *SyncHandler) SchedulerStatus(c *gin.Context) {
	h.Success(c, h.syncer.Status())
}

// LinkIssue godoc
// @ID           linkEntityIssue
// @Summary      Link an entity to an issue
// @Description  Links an existing issue when issue_key is set, otherwise creates a new issue and links it
// @Tags         links
// @Accept       json
// @Produce      json
// @Param        type path string true "Entity type" Enums(task, project, order, client)
// @Param        id path string true "Entity ID" format(uuid)
// @Param        request body LinkIssueRequest false "Link request"
// @Success      201 {object} dto.Response{data=worksync.ExternalLink}
// @Failure      400 {object} dto.Response "Invalid path or body"
// @Failure      401 {object} dto.Response "Missing or invalid token"
// @Failure      404 {object} dto.Response "Entity or issue not found"
// @Failure      409 {object} dto.Response "Issue already linked elsewhere"
// @Failure      503 {object} dto.Response "Tracker unavailable"
// @Failure      500 {object} dto.Response "Internal error"
// @Security     BearerAuth
// @Router       /api/v1/sync/entities/{type}/{id}/links [post]
func (h *SyncHandler) LinkIssue(c *gin.Context) {
	companyID, ok := h.company(c)
	if !ok {
		return
	}
	entityType, entityID, ok := h.entity(c)
	if !ok {
		return
	}

	var req LinkIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.BindError(c, err)
		return
	}

	var (
		link *worksync.ExternalLink
		err  error
	)
	if key := strings.TrimSpace(req.IssueKey); key != "" {
		link, err = h.linker.LinkExisting(c.Request.Context(), companyID, entityType, entityID, key)
	} else {
		link, err = h.linker.LinkIssue(c.Request.Context(), companyID, entityType, entityID, req.toLinkRequest())
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, link)
}

// Unlink godoc
// @ID           unlinkEntityIssue
// @Summary      Remove a link
// @Description  Removes one issue link from the entity. The issue itself is left untouched.
// @Tags         links
// @Param        type path string true "Entity type" Enums(task, project, order, client)
// @Param        id path string true "Entity ID" format(uuid)
// @Param        issue_key path string true "Issue key" example(CRM-42)
// @Success      204 "Link removed"
// @Failure      400 {object} dto.Response "Invalid path"
// @Failure      401 {object} dto.Response "Missing or invalid token"
// @Failure      404 {object} dto.Response "Entity or link not found"
// @Failure      500 {object} dto.Response "Internal error"
// @Security     BearerAuth
// @Router       /api/v1/sync/entities/{type}/{id}/links/{issue_key} [delete]
func (h *SyncHandler) Unlink(c *gin.Context) {
	companyID, ok := h.company(c)
	if !ok {
		return
	}
	var path LinkPath
	if err := c.ShouldBindUri(&path); err != nil {
		h.BindError(c, err)
		return
	}

	err := h.linker.Unlink(c.Request.Context(), companyID, worksync.EntityType(path.Type), uuid.MustParse(path.ID), strings.TrimSpace(path.IssueKey))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Push godoc
// @ID           pushEntityStatus
// @Summary      Push an entity's status
// @Description  Transitions every linked issue to the entity's stored status. Per-link failures are reported in the body.
// @Tags         links
// @Produce      json
// @Param        type path string true "Entity type" Enums(task, project, order, client)
// @Param        id path string true "Entity ID" format(uuid)
// @Success      200 {object} dto.Response{data=PushResponse}
// @Failure      400 {object} dto.Response "Invalid path"
// @Failure      401 {object} dto.Response "Missing or invalid token"
// @Failure      404 {object} dto.Response "Entity not found"
// @Failure      500 {object} dto.Response "Internal error"
// @Security     BearerAuth
// @Router       /api/v1/sync/entities/{type}/{id}/push [post]
func (h *SyncHandler) Push(c *gin.Context) {
	companyID, ok := h.company(c)
	if !ok {
		return
	}
	entityType, entityID, ok := h.entity(c)
	if !ok {
		return
	}

	result, err := h.pusher.PushStored(c.Request.Context(), companyID, entityType, entityID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, newPushResponse(result))
}

func (h *SyncHandler) company(c *gin.Context) (uuid.UUID, bool) {
	id, err := getCompanyID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return uuid.Nil, false
	}
	return id, true
}

func (h *SyncHandler) entity(c *gin.Context) (worksync.EntityType, uuid.UUID, bool) {
	var path EntityPath
	if err := c.ShouldBindUri(&path); err != nil {
		h.BindError(c, err)
		return "", uuid.Nil, false
	}
	// The uuid binding tag has already validated the format
	return worksync.EntityType(path.Type), uuid.MustParse(path.ID), true
}
