package router

import (
	"github.com/erp/backoffice/internal/domain/backoffice"
	"github.com/erp/backoffice/internal/interfaces/http/handler"
	"github.com/erp/backoffice/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ActivityReadPermission guards the mutation journal
const ActivityReadPermission = "activity:read"

// Handlers bundles the handlers mounted by Backoffice
type Handlers struct {
	Resources *handler.ResourceHandler
	Transfers *handler.TransferHandler
	Dashboard *handler.DashboardHandler
	Activity  *handler.ActivityHandler
	System    *handler.SystemHandler
}

// Backoffice returns the route groups of the back-office API
func Backoffice(h Handlers, registry *backoffice.Registry, log *zap.Logger) []RouteRegistrar {
	perm := middleware.PermissionConfig{Logger: log}

	resources := NewDomainGroup("resources", "/resources/:"+middleware.ResourceParam).
		Use(middleware.RequireResourcePermission(registry, perm))
	resources.GET("", h.Resources.List)
	resources.POST("", h.Resources.Create)
	resources.GET("/:id", h.Resources.Get)
	resources.PUT("/:id", h.Resources.Update)
	resources.DELETE("/:id", h.Resources.Delete)
	resources.POST("/:id/:action", h.Resources.Transition)

	transfers := NewDomainGroup("clothes-transfers", "/clothes-transfers").
		Use(middleware.RequireResourceAction(registry, backoffice.ClothesTransfers, perm))
	transfers.GET("", h.Transfers.List)
	transfers.POST("", h.Transfers.Create)
	transfers.GET("/:id", h.Transfers.Get)
	transfers.POST("/:id/approve", h.Transfers.Approve)
	transfers.POST("/:id/reject", h.Transfers.Reject)
	transfers.POST("/:id/approve-partial", h.Transfers.ApprovePartial)
	transfers.POST("/:id/reject-partial", h.Transfers.RejectPartial)
	transfers.POST("/:id/selection/toggle-all", h.Transfers.ToggleAll)

	workshops := NewDomainGroup("workshop-transfers", "/workshops/:workshopId/clothes-transfers").
		Use(middleware.RequireResourceAction(registry, backoffice.ClothesTransfers, perm))
	workshops.GET("", h.Transfers.ListWorkshop)
	workshops.GET("/:id", h.Transfers.Get)
	workshops.POST("/:id/approve", h.Transfers.ApproveWorkshop)

	dashboard := NewDomainGroup("dashboard", "/dashboard")
	dashboard.GET("", h.Dashboard.Summary)

	activity := NewDomainGroup("activity", "/activity").
		Use(middleware.RequireAnyPermissionWithConfig(perm, ActivityReadPermission))
	activity.GET("", h.Activity.List)
	activity.GET("/summary", h.Activity.Summary)

	system := NewDomainGroup("system", "/system")
	system.GET("/info", h.System.GetSystemInfo)
	system.GET("/ping", h.System.Ping)

	return []RouteRegistrar{resources, transfers, workshops, dashboard, activity, system}
}

// Mount registers the back-office groups and the unversioned health and
// metrics endpoints on engine
func Mount(engine *gin.Engine, h Handlers, registry *backoffice.Registry, metrics gin.HandlerFunc, log *zap.Logger) {
	engine.GET("/health", h.System.Health)
	engine.GET("/api/v1/health", h.System.Health)
	if metrics != nil {
		engine.GET("/metrics", metrics)
	}

	r := NewRouter(engine)
	for _, group := range Backoffice(h, registry, log) {
		r.Register(group)
	}
	r.Setup()
}
