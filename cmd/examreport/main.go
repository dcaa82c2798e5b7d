package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/examreport/internal/handler"
	appI18n "github.com/pavelanni/examreport/internal/i18n"
	"github.com/pavelanni/examreport/internal/model"
	"github.com/pavelanni/examreport/internal/scale"
	"github.com/pavelanni/examreport/internal/sheet"
	"github.com/pavelanni/examreport/internal/store"
)

//go:generate templ generate -path ../../internal/handler/views

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: loading .env: %v\n", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "examreport",
		Short:        "Turn quiz exports into scaled-score reports",
		SilenceUsage: true,
	}

	serve := serveCmd()
	root.AddCommand(serve, convertCmd(), tableCmd(), syncCmd(), contactsCmd(), notifyCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `examreport --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP upload server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringP("lang", "l", "en", "Default UI language (en, es)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /scores)")
	f.Int("max-upload-mb", 32, "Maximum size of one upload request in MB")
	f.String("sheet", "", "Sync target: a sheet name in the database, or a path ending in .csv")
	f.Bool("default-today", true, "Prefill the upload date with today's date")
	f.StringSlice("cors-origins", nil, "Origins allowed to call the server from a browser (none if empty)")
	addStoreFlags(f)
	addTableFlags(f)
	addLogFlags(f)
	return cmd
}

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addStoreFlags(f *pflag.FlagSet) {
	f.String("db", "examreport.db", "SQLite database path")
}

func addTableFlags(f *pflag.FlagSet) {
	def := model.DefaultColumns()
	f.String("score-table", "", "Score table file (yaml, json or toml); built-in tables if empty")
	f.String("col-student-id", def.StudentID, "Student identifier column")
	f.String("col-first-name", def.FirstName, "First name column")
	f.String("col-last-name", def.LastName, "Last name column")
	f.String("col-quiz-name", def.QuizName, "Quiz name column used to infer the subject")
	f.String("indicator-prefix", def.IndicatorPrefix, "Prefix of per-question indicator columns")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EXAMREPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examreport")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examreport")
	v.AddConfigPath("/etc/examreport")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func columnsFrom(v *viper.Viper) model.ColumnConfig {
	return model.ColumnConfig{
		StudentID:       v.GetString("col-student-id"),
		FirstName:       v.GetString("col-first-name"),
		LastName:        v.GetString("col-last-name"),
		QuizName:        v.GetString("col-quiz-name"),
		IndicatorPrefix: v.GetString("indicator-prefix"),
	}
}

func loadTables(v *viper.Viper) (*scale.Tables, error) {
	tables, err := scale.Load(v.GetString("score-table"))
	if err != nil {
		return nil, fmt.Errorf("load score tables: %w", err)
	}
	slog.Debug("score tables loaded", "subjects", tables.Subjects())
	return tables, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	tables, err := loadTables(v)
	if err != nil {
		return err
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	var sink sheet.Sink
	if target := v.GetString("sheet"); target != "" {
		sink, err = sheet.Open(target, db)
		if err != nil {
			return fmt.Errorf("open sheet: %w", err)
		}
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	cfg := model.AppConfig{
		Columns:      columnsFrom(v),
		BasePath:     basePath,
		MaxUploadMB:  v.GetInt("max-upload-mb"),
		SheetName:    v.GetString("sheet"),
		DefaultToday: v.GetBool("default-today"),
	}

	h, err := handler.New(db, tables, sink, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	if origins := v.GetStringSlice("cors-origins"); len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
			ExposedHeaders: []string{"Content-Disposition"},
			MaxAge:         300,
		}))
	}
	r.Use(appI18n.Middleware)

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"lang", lang,
		"languages", appI18n.Languages(),
		"subjects", tables.Subjects(),
		"sheet", cfg.SheetName,
		"base_path", basePath,
	)
	return http.ListenAndServe(addr, r)
}
