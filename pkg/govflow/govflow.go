package govflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/RealZimboGuy/govflow/internal/config"
	"github.com/RealZimboGuy/govflow/internal/controllers"
	"github.com/RealZimboGuy/govflow/internal/engine"
	"github.com/RealZimboGuy/govflow/internal/integrations"
	"github.com/RealZimboGuy/govflow/internal/migrations"
	"github.com/RealZimboGuy/govflow/internal/repository"
	"github.com/RealZimboGuy/govflow/internal/web"
	"github.com/RealZimboGuy/govflow/pkg/govflow/core"
	"github.com/lmittmann/tint"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Server holds the wired components of one govflow process.
type Server struct {
	DB          *sql.DB
	Dialect     repository.Dialect
	Clock       core.Clock
	Users       *repository.UserRepository
	Audit       *repository.AuditRepository
	Directory   *integrations.UserDirectory
	Definitions *engine.DefinitionStore
	Engine      *engine.Engine
	Router      *engine.Router
	SLA         *engine.SLAMonitor
}

// New wires repositories, collaborators and engine components on top of an open database.
// A nil clock means wall time.
func New(db *sql.DB, dialect repository.Dialect, clock core.Clock) *Server {
	clock = core.OrReal(clock)
	users := repository.NewUserRepository(db, dialect, clock)
	audit := repository.NewAuditRepository(db, dialect, clock)
	directory := integrations.NewUserDirectory(users)

	actions := engine.NewActionRunner(
		integrations.NewLogNotifier(slog.Default()),
		integrations.NewDocumentServiceFromConfig(),
		integrations.NewHTTPWebhookClient(nil),
		audit,
		clock,
	)
	store := engine.NewDefinitionStore(
		repository.NewDefinitionRepository(db, dialect, clock),
		audit,
		clock,
		config.GetSystemSettingDuration(config.ENGINE_DEFINITION_CACHE_TTL, 5*time.Minute),
	)
	eng := engine.NewEngine(
		store,
		repository.NewInstanceRepository(db, dialect, clock),
		repository.NewVoteRepository(db, dialect, clock),
		audit,
		directory,
		directory,
		actions,
		clock,
	)
	return &Server{
		DB:          db,
		Dialect:     dialect,
		Clock:       clock,
		Users:       users,
		Audit:       audit,
		Directory:   directory,
		Definitions: store,
		Engine:      eng,
		Router:      engine.NewRouter(store, eng),
		SLA:         engine.NewSLAMonitor(eng, clock),
	}
}

// RegisterRoutes mounts the JSON API and the login endpoints on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	auth := *controllers.NewBaseController(s.Users, s.Clock)
	controllers.NewDefinitionsController(s.Definitions, s.Directory, auth).RegisterRoutes(mux)
	controllers.NewInstancesController(s.Engine, auth).RegisterRoutes(mux)
	controllers.NewSuggestionsController(s.Router, auth).RegisterRoutes(mux)
	controllers.NewUsersController(s.Users, s.Directory, s.Clock).RegisterRoutes(mux)
	web.NewWebController(s.Users, s.Directory, s.Clock).RegisterRoutes(mux)
}

// Start migrates and opens the configured database, runs the SLA monitor and
// serves HTTP until ctx is cancelled. A nil mux gets a fresh one.
func Start(ctx context.Context, mux *http.ServeMux) error {
	db, dialect, err := OpenDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	srv := New(db, dialect, nil)
	if mux == nil {
		mux = http.NewServeMux()
	}
	srv.RegisterRoutes(mux)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go srv.SLA.Start(ctx)

	addr := ":" + config.GetSystemSettingString(config.ENGINE_SERVER_WEB_PORT)
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		addr = v
	}
	httpServer := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		slog.Error("HTTP server failed", "error", err)
		return err
	case <-ctx.Done():
		slog.Info("Shutting down HTTP server")
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		return httpServer.Shutdown(shutdownCtx)
	}
}

// MigrationTarget returns the embedded migration folder and the golang-migrate
// URL for the configured database.
func MigrationTarget(dialect repository.Dialect) (string, string, error) {
	switch dialect {
	case repository.Postgres:
		dbURL := config.GetSystemSettingString(config.DATABASE_URL)
		if dbURL == "" {
			return "", "", errors.New("GFLOW_DATABASE_URL must be set when using the POSTGRES database type")
		}
		return migrations.PostgresPath, dbURL, nil
	case repository.MySQL:
		dbURL, err := mysqlURL()
		if err != nil {
			return "", "", err
		}
		if !strings.Contains(dbURL, "multiStatements=") {
			dbURL += "&multiStatements=true"
		}
		return migrations.MySQLPath, dbURL, nil
	case repository.SQLite:
		fileName := config.GetSystemSettingString(config.DATABASE_SQLLITE_FILE_NAME)
		if fileName == "" {
			return "", "", errors.New("GFLOW_DATABASE_SQLLITE_FILE_NAME must be set")
		}
		return migrations.SQLitePath, "sqlite3://" + fileName, nil
	}
	return "", "", fmt.Errorf("unsupported database type %q", dialect)
}

func mysqlURL() (string, error) {
	dbURL := config.GetSystemSettingString(config.DATABASE_URL)
	if dbURL == "" {
		return "", errors.New("GFLOW_DATABASE_URL must be set when using the MYSQL database type")
	}
	if !strings.HasPrefix(dbURL, "mysql://") {
		return "", errors.New("GFLOW_DATABASE_URL must start with 'mysql://' for MySQL")
	}
	if !strings.Contains(dbURL, "parseTime=true") {
		return "", errors.New("GFLOW_DATABASE_URL must contain 'parseTime=true' for MySQL")
	}
	return dbURL, nil
}

// RunMigrations applies every pending migration of the configured database.
func RunMigrations() error {
	dialect, err := repository.DialectFromConfig()
	if err != nil {
		return err
	}
	path, dbURL, err := MigrationTarget(dialect)
	if err != nil {
		return err
	}
	slog.Info("Running migrations", "database", string(dialect))
	if err := migrations.Up(path, dbURL); err != nil {
		return fmt.Errorf("migrate %s: %w", dialect, err)
	}
	return nil
}

// OpenDatabase migrates the configured database and returns a pinged connection pool.
func OpenDatabase() (*sql.DB, repository.Dialect, error) {
	dialect, err := repository.DialectFromConfig()
	if err != nil {
		return nil, "", err
	}
	if err := RunMigrations(); err != nil {
		return nil, "", err
	}

	var db *sql.DB
	switch dialect {
	case repository.Postgres:
		slog.Info("Opening Postgres database")
		db, err = sql.Open("postgres", config.GetSystemSettingString(config.DATABASE_URL))
	case repository.MySQL:
		slog.Info("Opening MySQL database")
		var dbURL string
		if dbURL, err = mysqlURL(); err == nil {
			db, err = sql.Open("mysql", strings.TrimPrefix(dbURL, "mysql://"))
		}
	case repository.SQLite:
		fileName := config.GetSystemSettingString(config.DATABASE_SQLLITE_FILE_NAME)
		slog.Info("Opening SQLite database", "file", fileName)
		db, err = sql.Open("sqlite3", fileName)
		if err == nil {
			// sqlite allows a single writer
			db.SetMaxOpenConns(1)
		}
	}
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", dialect, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("ping %s: %w", dialect, err)
	}
	return db, dialect, nil
}

// SetupLogger installs a tint handler on the default slog logger, at GFLOW_LOG_LEVEL.
func SetupLogger() {
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      ParseLogLevel(config.GetSystemSettingString(config.LOG_LEVEL)),
			TimeFormat: time.RFC3339Nano,
		}),
	))
}

// ParseLogLevel maps debug, info, warn and error; anything else is info.
func ParseLogLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}
