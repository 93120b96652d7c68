package ports

import (
	"github.com/gin-gonic/gin"
)

// RouteRegistrar is implemented by every HTTP handler mounted on the API group.
type RouteRegistrar interface {
	RegisterRoutes(group *gin.RouterGroup)
}
