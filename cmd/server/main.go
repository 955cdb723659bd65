package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	gconfig "github.com/goliatone/go-config/config"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/edutrack/edutrack"
	"github.com/edutrack/edutrack/config"
)

type App struct {
	config *gconfig.Container[*config.BaseConfig]
	bunDB  *bun.DB
	auth   edutrack.Authenticator
	auther *edutrack.RouteAuthenticator
	repo   edutrack.RepositoryManager
	mailer edutrack.Mailer
	srv    router.Server[*fiber.App]
	logger *glog.BaseLogger
}

func (a *App) Config() *config.BaseConfig {
	return a.config.Raw()
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func main() {
	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Trace),
		glog.WithName("edutrack"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	cfg := gconfig.New(&config.BaseConfig{}).
		WithLogger(lgr.GetLogger("config"))

	ctx := context.Background()
	if err := cfg.Load(ctx); err != nil {
		panic(err)
	}

	fmt.Println("============")
	fmt.Println(print.MaybeHighlightJSON(cfg.Raw()))
	fmt.Println("============")

	app := &App{
		config: cfg,
		logger: lgr,
	}

	if err := WithPersistence(ctx, app); err != nil {
		panic(err)
	}

	if err := WithHTTPServer(ctx, app); err != nil {
		panic(err)
	}

	if err := WithHTTPAuth(ctx, app); err != nil {
		panic(err)
	}

	app.srv.Serve(app.Config().GetServer().GetAddress())

	WaitExitSignal()
}

func WithPersistence(ctx context.Context, app *App) error {
	db, err := sql.Open(sqliteshim.ShimName, app.Config().GetPersistence().GetDSN())
	if err != nil {
		log.Fatal(err)
		return err
	}

	persistence.RegisterModel((*edutrack.User)(nil))

	cfg := app.Config().GetPersistence()
	dialect := sqlitedialect.New()
	client, err := persistence.New(cfg, db, dialect)
	if err != nil {
		log.Fatal(err)
		return err
	}

	client.SetLogger(app.GetLogger("persistence"))

	migrationsFS, err := fs.Sub(edutrack.GetMigrationsFS(), "data/sql/migrations")
	if err != nil {
		return err
	}
	client.RegisterDialectMigrations(
		migrationsFS,
		persistence.WithDialectSourceLabel("data/sql/migrations"),
		persistence.WithValidationTargets("postgres", "sqlite"),
	)
	if err := client.ValidateDialects(ctx); err != nil {
		return err
	}

	if err := client.Migrate(ctx); err != nil {
		return err
	}

	client.RegisterFixtures(edutrack.GetFixturesFS())

	if err := client.Seed(ctx); err != nil {
		return err
	}

	if report := client.Report(); report != nil && !report.IsZero() {
		fmt.Printf("report: %s\n", report.String())
	}

	app.bunDB = client.DB()
	app.repo = edutrack.NewRepositoryManager(client.DB())

	return nil
}

func WithHTTPServer(ctx context.Context, app *App) error {
	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:           "edutrack",
			UnescapePath:      true,
			EnablePrintRoutes: true,
			StrictRouting:     false,
		}))
	})

	srv.Router().WithLogger(app.GetLogger("router"))

	app.srv = srv

	return nil
}

func WithHTTPAuth(ctx context.Context, app *App) error {
	cfg := app.Config().GetAuth()

	if err := app.repo.Validate(); err != nil {
		return err
	}

	smtp := app.Config().GetSMTP()
	app.mailer = edutrack.NewSMTPMailer(edutrack.SMTPConfig{
		Host:     smtp.Host,
		Port:     smtp.Port,
		User:     smtp.User,
		Password: smtp.Password,
		From:     smtp.From,
		BaseURL:  smtp.BaseURL,
	})

	userProvider := edutrack.NewUserProvider(app.repo.Users())
	userProvider.WithLogger(app.GetLogger("auth:prv"))

	activity := edutrack.LoggerActivitySink(app.GetLogger("activity"))

	authenticator := edutrack.NewAuthenticator(userProvider, cfg).
		WithLogger(app.GetLogger("auth:authz")).
		WithActivitySink(activity)

	app.auth = authenticator

	httpAuth, err := edutrack.NewHTTPAuthenticator(authenticator, cfg)
	if err != nil {
		return err
	}
	httpAuth.Logger = app.GetLogger("auth:http")
	app.auther = httpAuth

	authController := edutrack.NewAuthController(
		edutrack.WithControllerRepo(app.repo),
		edutrack.WithControllerAuther(authenticator),
		edutrack.WithControllerMailer(app.mailer),
		edutrack.WithControllerConfig(cfg),
		edutrack.WithControllerLogger(app.GetLogger("auth:ctrl")),
		edutrack.WithControllerActivitySink(activity),
	)

	usersController := edutrack.NewUsersController(
		edutrack.WithUsersRepo(app.repo),
		edutrack.WithUsersConfig(cfg),
		edutrack.WithUsersLogger(app.GetLogger("users:ctrl")),
		edutrack.WithUsersActivitySink(activity),
	)

	protected := httpAuth.ProtectedRoute(cfg, httpAuth.MakeAuthErrorHandler(false))
	adminOnly := httpAuth.RequireRole(edutrack.RoleAdmin)

	r := app.srv.Router()
	edutrack.RegisterAuthRoutes(r, authController)
	edutrack.RegisterChangePasswordRoute(r, authController, protected)
	edutrack.RegisterUserRoutes(r, usersController, protected, adminOnly)

	return nil
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
