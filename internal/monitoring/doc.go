// Package monitoring exports controller activity as Prometheus metrics and
// serves them, together with a JSON health probe, on a loopback HTTP
// listener.
//
// Usage:
//
//	metrics := monitoring.NewMetrics()
//	ctrl := controller.New(logger, cfg, devices, source, controller.WithMetrics(metrics))
//	srv := monitoring.NewServer(logger, "127.0.0.1:9464", metrics, statusFunc)
//	go srv.Start(ctx)
package monitoring
