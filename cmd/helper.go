package cmd

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/open-ch/alertpacket/pkg/list"
	"github.com/open-ch/alertpacket/pkg/packet"
	"github.com/open-ch/alertpacket/pkg/registry"
	"github.com/open-ch/alertpacket/pkg/stream"
)

// app bundles what the commands share. The registry is only connected when
// a command asks for it.
type app struct {
	log   *logrus.Logger
	store *packet.Store
}

func newApp() *app {
	log := getLogger()

	store := packet.DefaultStore(log)
	if root := viper.GetString("schema.root"); root != "" {
		store = packet.DirStore(root, log)
	}

	return &app{log: log, store: store}
}

// schema returns the schema selected with --schema.version.
func (a *app) schema() (*packet.Schema, error) {
	v, err := a.version()
	if err != nil {
		return nil, err
	}
	return a.store.Load(v)
}

func (a *app) version() (packet.Version, error) {
	s := viper.GetString("schema.version")
	if s == "" || s == "latest" {
		return a.store.LatestVersion()
	}
	return packet.ParseVersion(s)
}

func (a *app) registry(metrics *registry.Metrics) (registry.Registry, error) {
	tlsConfig, err := getTLSConfig()
	if err != nil {
		return nil, err
	}

	r, err := registry.New(registry.Config{
		URL:     viper.GetString("registry.url"),
		Timeout: viper.GetDuration("registry.timeout"),
		TLS:     tlsConfig,
	}, a.log, metrics)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func getStreamConfig() stream.Config {
	c := stream.Config{
		KafkaVersion: viper.GetString("kafka.version"),
		Brokers:      viper.GetStringSlice("kafka.brokers"),
	}

	certFile := viper.GetString("tls.cert")
	keyFile := viper.GetString("tls.key")
	caFile := viper.GetString("tls.caCert")
	if certFile != "" || keyFile != "" || caFile != "" {
		c.TLSConfig = &stream.TLSConfig{
			CertFile: certFile,
			KeyFile:  keyFile,
			CaFile:   caFile,
		}
	}

	return c
}

func getTLSConfig() (*tls.Config, error) {
	c := getStreamConfig()
	if c.TLSConfig == nil {
		return nil, nil
	}
	return c.TLSConfig.Load()
}

// execute does several things:
//  1. sets up the shared state of all commands
//  2. executes the passed in function
//  3. on success, prints the return value to the console,
//     otherwise it just returns the error
func execute(fun func(ctx context.Context, a *app) (string, error)) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		<-signals
		cancel() // attempt for graceful shutdown after first signal
		<-signals
		os.Exit(1) // force exit after second signal
	}()

	out, err := fun(ctx, newApp())
	if err != nil {
		return err
	}

	if out != "" {
		fmt.Println(out)
	}

	return nil
}

func formatWithCaption(entry interface{}, allowTable bool, caption string) (string, error) {
	if allowTable && formatAsTable {
		return list.FormatTable(entry, caption)
	}

	if formatAsYAML {
		return list.FormatYAML(entry)
	}

	return list.FormatJSON(entry)
}

func format(entry interface{}, allowTable bool) (string, error) {
	return formatWithCaption(entry, allowTable, "")
}
