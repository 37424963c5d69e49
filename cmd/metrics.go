package cmd

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// listenMetrics opens the metrics listener. An address prefixed with unix:
// names a socket, anything else is a TCP address.
func listenMetrics(addr string) (net.Listener, error) {
	network := "tcp"
	if strings.HasPrefix(addr, "unix:") {
		network, addr = "unix", strings.TrimPrefix(addr, "unix:")
	}

	l, err := net.Listen(network, addr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize metrics listener")
	}
	return l, nil
}

// startPrometheus serves the metrics of g on l until ctx is done.
func startPrometheus(ctx context.Context, wg *sync.WaitGroup, l net.Listener, g prometheus.Gatherer, log logrus.FieldLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux}

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
			log.Errorf("Prometheus had an Error and shut down: %s", err)
		}
	}()

	go func() {
		defer wg.Done()
		<-ctx.Done()
		log.Debug("Shutting down metrics server")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Errorf("cannot shutdown server: %v", err)
		}
	}()
}
