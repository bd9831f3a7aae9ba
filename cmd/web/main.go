// cmd/web/main.go
//
// Campus – HTTP entry point.
//
// Boot sequence
// -------------
//
//  1. Load env vars (jail-wide file → .env fallback).
//
//  2. Start daily rotating logger (tees to console when running in a TTY).
//
//  3. Connect Vault when VAULT_ADDR is set; `vault:` config values resolve
//     through it.
//
//  4. Load and validate the config tree, then push the signing secrets
//     into the session and CSRF packages.
//
//  5. Open the MySQL pool and build the store layer.
//
//  6. Assemble the request pipeline and mount the routes:
//
//     • every request       – state entry → rescue boundary → security
//       headers → CSRF guard
//     • resource routes     – context resolution → permission gate →
//       handler → telemetry finalize
//     • feed routes         – token authentication, no session
//     • /page_views/{id}    – interaction follow-up merge
//     • /metrics            – Prometheus scrape endpoint
//
//  7. Serve with hardened timeouts; SIGINT/SIGTERM drain gracefully.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/campushq/campus/internal/authz"
	"github.com/campushq/campus/internal/config"
	"github.com/campushq/campus/internal/csrf"
	"github.com/campushq/campus/internal/database"
	"github.com/campushq/campus/internal/domain"
	"github.com/campushq/campus/internal/feed"
	"github.com/campushq/campus/internal/logger"
	"github.com/campushq/campus/internal/middleware"
	"github.com/campushq/campus/internal/pipeline"
	"github.com/campushq/campus/internal/reqstate"
	"github.com/campushq/campus/internal/rescue"
	"github.com/campushq/campus/internal/resolve"
	"github.com/campushq/campus/internal/respond"
	"github.com/campushq/campus/internal/server"
	"github.com/campushq/campus/internal/session"
	"github.com/campushq/campus/internal/store"
	"github.com/campushq/campus/internal/telemetry"
	"github.com/campushq/campus/internal/vault"
)

const serverEnvPath = "/usr/local/etc/campus/global.env"

// loadEnv prefers the jail-wide env file; on dev it falls back to .env.
func loadEnv() {
	if _, err := os.Stat(serverEnvPath); err == nil {
		_ = godotenv.Load(serverEnvPath)
		return
	}
	_ = godotenv.Load()
}

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func init() { loadEnv() }

func main() {
	rootDir, _ := os.Getwd()
	logOut, err := logger.New(rootDir, runningInTTY())
	if err != nil {
		log.Fatalf("start logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	//
	// ── 1.  Vault (optional) and config ─────────────────────────────────
	//
	var resolver config.SecretResolver
	if os.Getenv("VAULT_ADDR") != "" {
		vc, err := vault.New(ctx)
		if err != nil {
			logOut.Fatalf("vault client: %v", err)
		}
		resolver = vc
	}

	cfg, err := config.Load(ctx, resolver)
	if err != nil {
		logOut.Fatalf("load config: %v", err)
	}

	installSecrets(cfg)

	//
	// ── 2.  Database and stores ─────────────────────────────────────────
	//
	logOut.Infow("connecting to database")
	db, err := database.OpenWithOptions(dsn(cfg), poolSize(cfg.Database.MaxOpen, 15), poolSize(cfg.Database.MaxIdle, 5))
	if err != nil {
		logOut.Fatalf("connect database: %v", err)
	}
	defer db.Close()
	logOut.Infow("database online")

	entities := store.NewEntities(db)
	members := store.NewMemberships(db)
	perms := store.NewPermissions(db)
	views := store.NewPageViews(db)
	accesses := store.NewAssetAccesses(db)
	reports := store.NewErrorReports(db)

	//
	// ── 3.  Pipeline assembly ───────────────────────────────────────────
	//
	gate := &authz.Gate{Evaluator: perms, LoginURL: cfg.HTTP.LoginURL}
	geo, err := telemetry.OpenGeo(cfg.Telemetry.GeoIPPath)
	if err != nil {
		// Geo enrichment is best-effort; run without it.
		logOut.Errorw("geoip open failed", "path", cfg.Telemetry.GeoIPPath, "err", err)
	} else {
		defer geo.Close()
	}

	p := &pipeline.Pipeline{
		Resolver: &resolve.Resolver{
			Entities: entities,
			Members:  members,
			Perms:    gate,
		},
		Feeds:    &feed.Resolver{Entities: entities, Members: members},
		Gate:     gate,
		Recorder: &telemetry.Recorder{Views: views, Accesses: accesses, Geo: geo, Enabled: cfg.Telemetry.Enabled},
		Rescue:   &rescue.Handler{Reports: reports},
		Members:  members,
	}

	//
	// ── 4.  Routes ──────────────────────────────────────────────────────
	//
	r := chi.NewRouter()
	r.Use(p.Entry)
	r.Use(p.RescueBoundary)
	r.Use(middleware.Security)
	r.Use(p.CSRFGuard)

	r.Handle("/metrics", promhttp.Handler())

	// Feeds authenticate via the opaque code, never the session.
	r.With(p.Feed([]domain.Kind{domain.KindCourse, domain.KindGroup, domain.KindUser})).
		Get("/feeds/calendars/{feed_code}.ics", serveContext)
	r.With(p.Feed([]domain.Kind{domain.KindCourse, domain.KindGroup})).
		Get("/feeds/topics/{feed_code}.atom", serveContext)

	// Telemetry follow-up callback.
	r.Put("/page_views/{page_view_id}", p.UpdatePageView)

	// Context-scoped resources.
	r.With(p.Protect("read")).Get("/courses/{course_id}", serveContext)
	r.With(p.Protect("read")).Get("/accounts/{account_id}", serveContext)
	r.With(p.Protect("read")).Get("/groups/{group_id}", serveContext)
	r.With(p.Protect("read")).Get("/users/{user_id}", serveContext)
	r.With(p.Protect("read", "manage")).Get("/courses/{course_id}/settings", serveContext)
	r.With(p.Protect("read")).Get("/courses/{course_id}/files/{file_id}", serveFile(p))
	r.With(p.Protect("read")).Get("/groups/{group_id}/files/{file_id}", serveFile(p))
	r.With(p.Protect()).Get("/profile", serveContext)
	r.With(p.Protect()).Get("/", serveContext)

	var handler http.Handler = r
	if cfg.HTTP.ForceHTTPS {
		handler = middleware.ForceHTTPS(handler)
	}

	//
	// ── 5.  Serve ───────────────────────────────────────────────────────
	//
	srv := server.New(cfg.HTTP.ListenAddr, handler)
	go func() {
		logOut.Infow("listening", "addr", cfg.HTTP.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logOut.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logOut.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logOut.Errorw("shutdown", "err", err)
	}
}

// serveContext is the placeholder resource handler: it renders the
// resolved context as JSON so the pipeline can be exercised end to end
// before real views land.
func serveContext(w http.ResponseWriter, r *http.Request) {
	st := reqstate.FromContext(r.Context())
	body := map[string]any{"user_id": st.UserID()}
	if st.Context != nil {
		body["context_type"] = st.Context.Kind.String()
		body["context_id"] = st.Context.ID
		body["context_name"] = st.Context.Name
	}
	respond.JSON(w, http.StatusOK, body)
}

// serveFile is the context-scoped file handler.  Each download counts
// as a view-level asset access on the (user, file) counter, which also
// links the pending page view to the access row.
func serveFile(p *pipeline.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := reqstate.FromContext(r.Context())
		fileID := chi.URLParam(r, "file_id")

		code := fmt.Sprintf("%s_%d:file_%s",
			strings.ToLower(st.Context.Kind.String()), st.Context.ID, fileID)
		p.Recorder.RecordAssetAccess(r.Context(), st, code, "files", domain.LevelView)

		respond.JSON(w, http.StatusOK, map[string]any{
			"file_id":      fileID,
			"context_type": st.Context.Kind.String(),
			"context_id":   st.Context.ID,
		})
	}
}

// installSecrets pushes config-sourced keys into the stateless token
// packages.  Missing keys fall back to their env/random defaults.
func installSecrets(cfg *config.Config) {
	if k := decodeKey(cfg.Security.SessionKey); k != nil {
		session.SetSecret(k)
	}
	if k := decodeKey(cfg.Security.CSRFKey); k != nil {
		csrf.SetSecret(k)
	}
}

func decodeKey(s string) []byte {
	if s == "" {
		return nil
	}
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil && len(b) >= 32 {
		return b
	}
	if len(s) >= 32 {
		return []byte(s)
	}
	zap.L().Warn("signing key too short; ignoring")
	return nil
}

func dsn(cfg *config.Config) string {
	d := cfg.Database.DSN
	if cfg.Database.Password != "" {
		// DSN templates carry one %s verb for the secret.
		return os.Expand(d, func(k string) string {
			if k == "DB_PASSWORD" {
				return cfg.Database.Password
			}
			return os.Getenv(k)
		})
	}
	return d
}

func poolSize(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
