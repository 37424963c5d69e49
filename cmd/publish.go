package cmd

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/open-ch/alertpacket/pkg/packet"
	"github.com/open-ch/alertpacket/pkg/registry"
	"github.com/open-ch/alertpacket/pkg/stream"
)

type publishReport struct {
	Topic    string `header:"Topic" json:"topic"`
	SchemaID int    `header:"Schema ID" json:"schemaId"`
	Read     int    `header:"Read" json:"read"`
	Sent     int    `header:"Sent" json:"sent"`
}

func init() {
	var linger time.Duration

	var publishCmd = &cobra.Command{
		Use:   "publish TOPIC FILE",
		Short: "Publish the alerts of a container file to Kafka",
		Long: `Publish the alerts of a container file to Kafka.

The selected schema is registered under --registry.subject and every alert is
sent in the Confluent wire format, keyed by its alert ID. Alerts that cannot
be read or sent are reported and skipped.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic, path := args[0], args[1]

			return execute(func(ctx context.Context, a *app) (string, error) {
				schema, err := a.schema()
				if err != nil {
					return "", err
				}

				var wg sync.WaitGroup
				reg := prometheus.NewRegistry()
				serveCtx, stopServe := context.WithCancel(ctx)
				defer func() {
					stopServe()
					wg.Wait()
				}()

				if addr := viper.GetString("metrics.listen"); addr != "" {
					l, err := listenMetrics(addr)
					if err != nil {
						return "", err
					}
					startPrometheus(serveCtx, &wg, l, reg, a.log)
				}

				r, err := a.registry(registry.NewMetrics(reg))
				if err != nil {
					return "", err
				}

				subject := viper.GetString("registry.subject")
				id, err := r.Register(subject, schema)
				if err != nil {
					return "", errors.WithMessagef(err, "cannot register schema %s", schema.Version())
				}

				_, alerts, readErr := packet.RetrieveFile(path, schema, nil)
				if readErr != nil && len(alerts) == 0 {
					return "", readErr
				}
				if readErr != nil {
					a.log.WithError(readErr).Warn("Some alerts could not be read")
				}

				producer, err := stream.NewProducer(getStreamConfig(), registry.NewFramer(r, schema), a.log)
				if err != nil {
					return "", err
				}
				defer producer.Close()
				producer.WithMetrics(stream.NewPublishedCounter(reg))

				sent, err := producer.PublishAll(ctx, topic, alerts, id)
				if err != nil {
					a.log.WithError(err).Warn("Some alerts could not be published")
				}

				if linger > 0 && viper.GetString("metrics.listen") != "" {
					select {
					case <-time.After(linger):
					case <-ctx.Done():
					}
				}

				report := publishReport{Topic: topic, SchemaID: id, Read: len(alerts), Sent: sent}
				if sent == 0 && len(alerts) > 0 {
					return "", errors.WithMessage(err, "no alert was published")
				}
				return format([]publishReport{report}, true)
			})
		},
	}

	f := publishCmd.Flags()
	f.String("metrics.listen", "", "Serve Prometheus metrics on this address (host:port or unix:PATH)")
	f.DurationVar(&linger, "metrics.linger", 0, "Keep serving metrics this long after publishing")
	_ = viper.BindPFlag("metrics.listen", f.Lookup("metrics.listen"))

	RootCmd.AddCommand(publishCmd)
}
