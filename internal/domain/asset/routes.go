package asset

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts /assets. Reads accept anonymous callers so public assets can be
// embedded directly; everything else requires a token.
func RegisterRoutes(r *gin.RouterGroup, h *Handler, auth, optionalAuth gin.HandlerFunc) {
	assets := r.Group("/assets")
	{
		assets.GET("/:id", optionalAuth, h.Get)

		protected := assets.Group("", auth)
		protected.POST("", h.Ingest)
		protected.POST("/upload", h.Upload)
		protected.POST("/link", h.Link)
		protected.POST("/zip", h.Export)
		protected.GET("", h.List)
		protected.GET("/:id/meta", h.Meta)
		protected.DELETE("/:id", h.Delete)
		protected.PATCH("/:id/favorite", h.SetFavorite)
		protected.PATCH("/:id/pin", h.SetPinned)
	}
}
