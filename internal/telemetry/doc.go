// Package telemetry provides OpenTelemetry tracing and metrics for ctxroute.
//
// Router and attention instruments are created from Meter("ctxroute.router")
// and Meter("ctxroute.attention"). Export is OTLP over gRPC or
// HTTP/protobuf, selected by Config.Protocol.
//
//	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Observability, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Provider failures degrade to no-op providers rather than failing startup.
//
// Tests use NewTestTelemetry, which records spans in memory and exposes a
// manual metric reader:
//
//	tt := telemetry.NewTestTelemetry()
//	m, _ := router.NewMetrics(tt.Meter("test"))
//	...
//	assert.Equal(t, int64(1), tt.CounterValue(t, "ctxroute.router.decisions.total"))
package telemetry
