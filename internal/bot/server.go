package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/slack-go/slack"
	"github.com/xela07ax/slack-approval-bot/internal/engine"
	"go.uber.org/zap"
)

// Тело запроса Slack небольшое; ограничиваем на всякий случай
const maxSlackBody = 1 << 20

type ServerOptions struct {
	// SigningSecret включает HTTP-прием событий Slack (/slack/*); пусто — только служебные роуты.
	SigningSecret string
	Gatherer      prometheus.Gatherer
}

// Server обслуживает health/metrics и, в HTTP-режиме, события Slack.
type Server struct {
	router *chi.Mux
	bot    *Bot
	opts   ServerOptions
	logger *zap.Logger
}

func NewServer(bot *Bot, opts ServerOptions, logger *zap.Logger) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		router: chi.NewRouter(),
		bot:    bot,
		opts:   opts,
		logger: logger.Named("http"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	// --- 1. Глобальные Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(engine.TracingMiddleware)
	r.Use(middleware.Recoverer)

	// --- 2. Служебные роуты ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))

	// --- 3. События Slack (только с подписью) ---
	if s.opts.SigningSecret == "" {
		return
	}
	r.Route("/slack", func(r chi.Router) {
		r.Use(s.verifySignature)
		r.Post("/commands", s.handleCommand)
		r.Post("/interactions", s.handleInteraction)
	})
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// verifySignature проверяет X-Slack-Signature и возвращает тело запроса для дальнейшего разбора.
func (s *Server) verifySignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxSlackBody))
		if err != nil {
			http.Error(w, "cannot read body", http.StatusBadRequest)
			return
		}

		sv, err := slack.NewSecretsVerifier(r.Header, s.opts.SigningSecret)
		if err == nil {
			_, _ = sv.Write(body)
			err = sv.Ensure()
		}
		if err != nil {
			s.logger.Warn("rejected unsigned slack request",
				zap.String("trace_id", engine.TraceID(r.Context())),
				zap.String("path", r.URL.Path),
				zap.Error(err))
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	cmd, err := slack.SlashCommandParse(r)
	if err != nil {
		s.malformed(w, r, "cannot parse slash command", err)
		return
	}
	evt := CommandFromSlack(cmd)
	s.ackAndDispatch(w, r, func(ctx context.Context, ack func()) {
		s.bot.DispatchCommand(ctx, evt, ack)
	})
}

func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	var ic slack.InteractionCallback
	if err := json.Unmarshal([]byte(r.FormValue("payload")), &ic); err != nil {
		s.malformed(w, r, "cannot parse interaction payload", err)
		return
	}

	switch ic.Type {
	case slack.InteractionTypeViewSubmission:
		evt := SubmissionFromSlack(ic)
		s.ackAndDispatch(w, r, func(ctx context.Context, ack func()) {
			s.bot.DispatchSubmission(ctx, evt, ack)
		})
	case slack.InteractionTypeBlockActions:
		actions := InteractionsFromSlack(ic)
		s.ackAndDispatch(w, r, func(ctx context.Context, ack func()) {
			ack()
			for _, a := range actions {
				go s.bot.DispatchInteraction(ctx, a, func() {})
			}
		})
	default:
		w.WriteHeader(http.StatusOK)
	}
}

// ackAndDispatch: ответ 200 (ack) уходит раньше, чем обработчик начнет исходящие вызовы.
// Обработчик живет дольше запроса, поэтому контекст отвязан от r.Context(), trace id переносится.
func (s *Server) ackAndDispatch(w http.ResponseWriter, r *http.Request, dispatch func(ctx context.Context, ack func())) {
	acked := make(chan struct{})
	responded := make(chan struct{})
	ctx := engine.WithTraceID(context.Background(), engine.TraceID(r.Context()))

	go dispatch(ctx, func() {
		close(acked)
		<-responded
	})

	<-acked
	defer close(responded)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) malformed(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.bot.metrics.Failure(engine.FailureMalformed)
	s.logger.Warn(msg,
		zap.String("trace_id", engine.TraceID(r.Context())),
		zap.Error(err))
	http.Error(w, "bad request", http.StatusBadRequest)
}
