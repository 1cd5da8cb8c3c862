// Package logging provides structured logging for ctxroute.
//
// Logger wraps Zap with:
//   - a Trace level (-2, below Debug)
//   - stdout output plus an optional OpenTelemetry log bridge
//   - context correlation fields (trace_id, request.id, session.id)
//   - encoder-level redaction, since task descriptions are free text and
//     sometimes carry credentials pasted by users
//   - level-aware sampling (errors never sampled)
//
// Usage:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRequestID(ctx, "req_42")
//	logger.Info(ctx, "route selected",
//	    logging.TaskText("task", task),
//	    zap.String("route", d.Route))
//
// Components that only need a *zap.Logger receive logger.Underlying().
//
// Tests use NewTestLogger, which records entries in memory:
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "model imported")
//	tl.AssertLogged(t, zapcore.InfoLevel, "model imported")
package logging
