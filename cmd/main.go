package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"filekeeper/internal/auth"
	"filekeeper/internal/config"
	"filekeeper/internal/handler"
	"filekeeper/internal/logger"
	"filekeeper/internal/repository"
	"filekeeper/internal/repository/memory"
	"filekeeper/internal/service"
	"filekeeper/internal/service/s3"
	"filekeeper/internal/storage"
)

type stores struct {
	grants      service.PermissionStore
	users       service.UserDirectory
	departments service.DepartmentStore
	shares      service.ShareStore
	recycle     service.RecycleStore
}

func openStores(cfg *config.Config, log *zap.Logger) (*stores, *sqlx.DB, error) {
	if cfg.Database.Driver == "memory" {
		log.Warn("using in-memory metadata store; nothing survives a restart")
		users := memory.NewUserStore()
		return &stores{
			grants:      memory.NewPermissionStore(),
			users:       users,
			departments: users,
			shares:      memory.NewShareStore(),
			recycle:     memory.NewRecycleStore(),
		}, nil, nil
	}

	db, err := repository.Connect(&cfg.Database, log, 5, 5*time.Second)
	if err != nil {
		return nil, nil, err
	}
	if err := repository.Migrate(&cfg.Database, log); err != nil {
		db.Close()
		return nil, nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	users := repository.NewUserRepository(db)
	return &stores{
		grants:      repository.NewPermissionRepository(db),
		users:       users,
		departments: users,
		shares:      repository.NewShareRepository(db),
		recycle:     repository.NewRecycleRepository(db),
	}, db, nil
}

func openStorage(cfg *config.StorageConfig, log *zap.Logger) (storage.Backend, error) {
	if cfg.Backend == "s3" {
		return s3.NewClient(&cfg.S3, log.Named("s3"))
	}
	return storage.NewLocalStore(cfg.Root)
}

func openVerifier(cfg *config.AuthConfig) (auth.Verifier, func(), error) {
	if cfg.Mode == "grpc" {
		conn, err := grpc.NewClient(cfg.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to auth service: %w", err)
		}
		return auth.NewGRPCVerifier(conn), func() { conn.Close() }, nil
	}
	return auth.NewJWTVerifier(cfg.JWTSecret), func() {}, nil
}

func main() {
	flags := pflag.NewFlagSet("filekeeper", pflag.ExitOnError)
	configPath := flags.String("config", "config.yaml", "path to the configuration file")
	config.RegisterFlags(flags)
	_ = flags.Parse(os.Args[1:])

	appConfig, err := config.Load(*configPath, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(appConfig.Logging.Level, appConfig.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	st, db, err := openStores(appConfig, log)
	if err != nil {
		log.Fatal("failed to open metadata store", zap.Error(err))
	}

	backend, err := openStorage(&appConfig.Storage, log)
	if err != nil {
		log.Fatal("failed to open storage backend", zap.Error(err))
	}

	verifier, closeVerifier, err := openVerifier(&appConfig.Auth)
	if err != nil {
		log.Fatal("failed to set up authentication", zap.Error(err))
	}
	defer closeVerifier()

	// Services
	audit := service.NewZapAuditSink(log)
	authzService := service.NewAuthorizationService(st.grants, st.departments, log.Named("authz"))
	permissionService := service.NewPermissionService(st.grants, st.users, st.departments, audit, log.Named("permissions"))
	shareService := service.NewShareService(st.shares, authzService, backend, audit, service.ShareSettings{
		TokenBytes: appConfig.Share.TokenBytes,
		BcryptCost: appConfig.Share.BcryptCost,
	}, log.Named("shares"))
	recycleService, err := service.NewRecycleService(st.recycle, authzService, backend, audit, service.RecycleSettings{
		Dir:       appConfig.Storage.RecycleDir,
		Retention: appConfig.Recycle.Retention,
	}, log.Named("recycle"))
	if err != nil {
		log.Fatal("failed to create recycle service", zap.Error(err))
	}

	// Handlers
	router := handler.NewRouter(
		handler.RouterConfig{
			AllowedOrigins: appConfig.Server.AllowedOrigins,
			RequestTimeout: appConfig.Server.RequestTimeout,
		},
		verifier,
		handler.NewPermissionHandler(permissionService, authzService, log),
		handler.NewRecycleHandler(recycleService, log),
		handler.NewShareHandler(shareService, backend, log),
		log.Named("http"),
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", appConfig.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	if appConfig.Server.GRPCPort != "" {
		go func() {
			lis, err := net.Listen("tcp", fmt.Sprintf(":%s", appConfig.Server.GRPCPort))
			if err != nil {
				log.Fatal("failed to listen for gRPC", zap.Error(err))
			}
			log.Info("starting gRPC server", zap.String("port", appConfig.Server.GRPCPort))
			if err := grpcServer.Serve(lis); err != nil {
				log.Fatal("failed to serve gRPC", zap.Error(err))
			}
		}()
	}

	go func() {
		log.Info("starting HTTP server", zap.String("port", appConfig.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	stopCleanup := make(chan struct{})
	if interval := appConfig.Recycle.CleanupInterval; interval > 0 {
		cleanupTicker := time.NewTicker(interval)
		go func() {
			defer cleanupTicker.Stop()
			for {
				select {
				case <-cleanupTicker.C:
					ctx := context.Background()
					if _, err := recycleService.AutoCleanup(ctx); err != nil {
						log.Error("recycle bin auto cleanup failed", zap.Error(err))
					}
					if appConfig.Recycle.SweepExpiredGrants {
						if n, err := permissionService.SweepExpired(ctx); err != nil {
							log.Error("expired grant sweep failed", zap.Error(err))
						} else if n > 0 {
							log.Info("expired grants swept", zap.Int64("count", n))
						}
					}
				case <-stopCleanup:
					return
				}
			}
		}()
	}

	<-quit
	log.Info("shutting down servers")
	close(stopCleanup)
	healthServer.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), appConfig.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn("HTTP server forced to shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()

	if db != nil {
		if err := db.Close(); err != nil {
			log.Warn("error closing database connection", zap.Error(err))
		}
	}
	log.Info("server exited properly")
}
