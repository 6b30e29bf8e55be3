package main // Entry point package

import (
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/stratboard/strategy-api/internal/auth"
	"github.com/stratboard/strategy-api/internal/cache"
	"github.com/stratboard/strategy-api/internal/config"
	"github.com/stratboard/strategy-api/internal/database"
	"github.com/stratboard/strategy-api/internal/handler"
	"github.com/stratboard/strategy-api/internal/metrics"
	"github.com/stratboard/strategy-api/internal/repository"
	"github.com/stratboard/strategy-api/internal/router"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments set the environment directly

	cfg := config.Load()

	if cfg.Env == "prod" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetLevel(logrus.DebugLevel)
	}

	db, err := database.Open(database.Config{
		User: cfg.DBUser, Pass: cfg.DBPass,
		Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		PingTimeout:     cfg.DBPingTimeout,
	})
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		logrus.Warn("redis unavailable; rate limiting and caching disabled")
	}

	users := repository.NewUserRepo(db)
	strategies := repository.NewStrategyRepo(db)
	issuer := auth.NewIssuer(cfg.AccessSecret, cfg.RefreshSecret, cfg.JWTIssuer, cfg.JWTAudience,
		cfg.AccessTTL, cfg.RefreshTTL)
	store := cache.NewStore(config.LoadCacheConfig(), rdb)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(metrics.Middleware())

	router.Register(e, config.LoadRateLimitConfig(), rdb,
		issuer, users,
		handler.NewAuthHandler(cfg, users, issuer),
		handler.NewStrategyHandler(strategies, store))

	addr := ":" + cfg.Port
	logrus.WithField("addr", addr).WithField("env", cfg.Env).Info("listening")
	if err := e.Start(addr); err != nil {
		logrus.WithError(err).Fatal("server stopped")
	}
}
