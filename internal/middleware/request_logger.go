package middleware

import (
	"time"

	"github.com/ibra-a/urbanjungle-website-sub000/internal/tracing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const HeaderRequestID = "X-Request-ID"

var tracer = otel.Tracer("github.com/ibra-a/urbanjungle-website-sub000/internal/middleware")

// リクエストごとに span と zerolog ロガーを context に入れ、終わりに 1 行ログを出す。
// 上流の traceparent があれば引き継ぐ。
func RequestLogger(base zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			started := time.Now()

			ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))
			ctx, span := tracer.Start(ctx, req.Method+" "+c.Path(),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", req.Method),
					attribute.String("http.route", c.Path()),
				),
			)
			defer span.End()

			reqID := req.Header.Get(HeaderRequestID)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			c.Response().Header().Set(HeaderRequestID, reqID)

			lc := base.With().Str("request_id", reqID)
			if tid := tracing.TraceID(ctx); tid != "" {
				lc = lc.Str("trace_id", tid)
			}
			log := lc.Logger()
			c.SetRequest(req.WithContext(log.WithContext(ctx)))

			err := next(c)
			if err != nil {
				// echo の HTTPError などをここでレスポンスにする
				c.Error(err)
			}

			status := c.Response().Status
			span.SetAttributes(attribute.Int("http.status_code", status))
			if status >= 500 {
				span.SetStatus(codes.Error, "server error")
			}

			ev := log.Info()
			if status >= 500 {
				ev = log.Error().Err(err)
			}
			ev.Str("method", req.Method).
				Str("path", c.Path()).
				Int("status", status).
				Dur("latency", time.Since(started)).
				Msg("request")
			return nil
		}
	}
}
