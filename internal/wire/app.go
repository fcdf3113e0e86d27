package wire

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mithrel/nettransport/internal/config"
	"github.com/mithrel/nettransport/internal/logging"
	"github.com/mithrel/nettransport/internal/metrics"
	"github.com/mithrel/nettransport/internal/transport"
)

// App aggregates the major services for easy injection.
type App struct {
	Cfg       *viper.Viper
	Log       *zap.Logger
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Transport *transport.ServerNetworkTransport
}

// BuildApp wires dependencies from an already loaded config. The transport
// is returned unbound.
func BuildApp(ctx context.Context, v *viper.Viper) (*App, error) {
	if err := config.CheckConfigValidity(v); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger, err := logging.New(v.GetString("log.level"))
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg, v.GetString("metrics.namespace"))

	tr := transport.New(
		transport.WithLogger(logger.Named("transport")),
		transport.WithMetrics(m),
		transport.WithPendingLimit(v.GetInt("transport.pending_limit")),
		transport.WithReadBufferSize(v.GetInt("transport.read_buffer")),
	)
	return &App{
		Cfg:       v,
		Log:       logger,
		Registry:  reg,
		Metrics:   m,
		Transport: tr,
	}, nil
}
