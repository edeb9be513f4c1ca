package connection

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"flowboard/config"
	boardctl "flowboard/controller/board"
	memberctl "flowboard/controller/member"
	reportctl "flowboard/controller/report"
	taskctl "flowboard/controller/task"
	timerctl "flowboard/controller/timer"
	"flowboard/dto"
	"flowboard/middleware"
	"flowboard/report"
	"flowboard/session"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter wires every controller behind the access token middleware.
func NewRouter(cfg *config.Config, sessions *session.Manager) (*gin.Engine, error) {
	if err := dto.RegisterValidators(); err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORSOrigins
	}
	corsCfg.AddAllowHeaders("Authorization")
	router.Use(cors.New(corsCfg))

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Api is running!"})
	})

	api := router.Group("/", middleware.AccessTokenMiddleware(cfg.JWTSecret))
	boardctl.BoardController(api, sessions)
	taskctl.TaskController(api, sessions)
	memberctl.MemberController(api, sessions)
	timerctl.TimerController(api, sessions)
	reportctl.ReportController(api, sessions, report.Rates{Default: cfg.DefaultHourlyRate, Override: cfg.RateOverride})
	return router, nil
}

// StartServer serves until ctx is cancelled, then shuts down and closes
// every workspace.
func StartServer(ctx context.Context, cfg *config.Config, sessions *session.Manager) error {
	router, err := NewRouter(cfg, sessions)
	if err != nil {
		return err
	}
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}

	errc := make(chan error, 1)
	go func() {
		log.Printf("[server] listening on :%s", cfg.Port)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		sessions.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	sessions.Close()
	log.Println("[server] stopped")
	return err
}
