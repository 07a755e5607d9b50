package main

import (
	"net/http"

	"ChatHub/global"
	"ChatHub/global/config"
	"ChatHub/middleware"
	midsec "ChatHub/middleware/security"
	"ChatHub/service/chat"
	"ChatHub/service/storage"

	"github.com/gin-gonic/gin"
)

// newEngine ws 升级 + 运维接口
func newEngine(cfg *config.Config, srv *chat.Server, presence *storage.RedisPresence) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	mids := middleware.NewManager(middleware.Origin(cfg.HTTP.WSPath, cfg.HTTP.AllowedOrigins))
	r.Use(mids.Use())

	var auth gin.HandlerFunc
	if cfg.Auth.Mode == config.AuthJWT {
		auth = midsec.Middleware(midsec.DefaultOptions(global.JWTOptions(cfg.Auth)))
	}
	rt := middleware.NewRouter(r, auth)

	r.GET(cfg.HTTP.WSPath, srv.HandleWS)
	rt.GET("/healthz", healthz(srv), middleware.RouteOpt{})
	rt.GET("/api/presence/:user_id", presenceLookup(srv, presence), middleware.RouteOpt{IsAuth: true})
	return r
}

func healthz(srv *chat.Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := srv.ConnMgr().Stats()
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"node_id":     srv.NodeID(),
			"connections": st.Connections,
			"users":       st.Users,
		})
	}
}

func presenceLookup(srv *chat.Server, presence *storage.RedisPresence) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.Param("user_id")
		local := len(srv.ConnMgr().ConnectionsFor(uid))
		resp := gin.H{
			"user_id":           uid,
			"local_connections": local,
			"online":            local > 0,
		}
		if presence != nil {
			gw, online, err := presence.Lookup(c.Request.Context(), uid)
			if err == nil {
				resp["online"] = online || local > 0
				resp["gateway_id"] = gw
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}
