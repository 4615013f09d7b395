package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"

	"retouch-server/core"
	"retouch-server/editor"
	"retouch-server/handlers/api/exports"
	"retouch-server/handlers/api/sessions"
	"retouch-server/handlers/websocket"
	"retouch-server/middleware"
	"retouch-server/session"
	"retouch-server/stores"
)

func setupRouter(manager *session.Manager, ed core.Editor, store core.ExportStore) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "X-CSRF-Token", "Origin", "Host", "Connection", "Accept-Encoding", "Accept-Language", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Route("/api/v2", func(r chi.Router) {
		r.Use(middleware.WithSession)

		r.Get("/state", sessions.HandleGetState(manager))
		r.Get("/log", sessions.HandleGetLog(manager))

		r.Route("/image", func(r chi.Router) {
			r.Post("/", sessions.HandleUploadImage(manager))
			r.Get("/", sessions.HandleGetImage(manager))
			r.Delete("/", sessions.HandleClearImage(manager))
			r.Get("/thumbnail", sessions.HandleGetThumbnail(manager))
			r.Post("/undo", sessions.HandleUndo(manager))
			r.Post("/redo", sessions.HandleRedo(manager))
		})

		r.Route("/mask", func(r chi.Router) {
			r.Put("/", sessions.HandleSetMask(manager))
			r.Get("/", sessions.HandleGetMask(manager))
			r.Delete("/", sessions.HandleClearMask(manager))
		})

		r.Post("/edits", sessions.HandleSubmitEdit(manager, ed))

		r.Route("/exports", func(r chi.Router) {
			r.Post("/", exports.HandleCreateExport(manager, store))
			r.Get("/", exports.HandleListExports(store))
			r.Get("/{id}", exports.HandleDownloadExport(store))
		})
	})

	r.Get("/api/v2/sessions/active", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, websocket.GetActiveSessions())
	})

	return r
}

func editorFromEnv() core.Editor {
	client := editor.NewClientFromEnv()
	logrus.WithFields(logrus.Fields{
		"endpoint": client.Endpoint(),
		"model":    client.Model(),
	}).Info("Use image editor")
	return client
}

func waitForShutdown(ioo *socketio.Server, manager *session.Manager) {
	exit := make(chan struct{})
	signalC := make(chan os.Signal, 1)

	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		for s := range signalC {
			switch s {
			case os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
				close(exit)
				return
			}
		}
	}()

	<-exit
	logrus.Info("Shutting down...")
	ioo.Close(nil)
	manager.Shutdown()
	os.Exit(0)
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	listenAddress := flag.String("listen", ":3002", "The address to listen on.")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	ed := editorFromEnv()
	manager := session.NewManager()
	store := stores.GetStore()

	r := setupRouter(manager, ed, store)

	ioo := websocket.SetupSocketIO(manager)
	r.Mount("/socket.io/", ioo.ServeHandler(nil))

	logrus.WithField("addr", *listenAddress).Info("starting server")
	go func() {
		if err := http.ListenAndServe(*listenAddress, r); err != nil {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	logrus.Debug("Server is running in the background")
	waitForShutdown(ioo, manager)
}
