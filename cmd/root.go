package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "ALERTPACKET"
	defaultSubject = "alert-packet"
)

var (
	cfgFile       string
	verbose       bool
	formatAsTable bool
	formatAsYAML  bool
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "alertpacket",
	Short: "Serialize, validate and publish astronomical alert packets.",
	Long: `Serialize, validate and publish astronomical alert packets.

alertpacket round-trips alerts through the packaged Avro schemas, simulates
alert batches, checks schema evolution and mirrors the packaged schemas into
a Confluent compatible schema registry.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	var (
		keyFile    string
		certFile   string
		caFile     string
		brokerList []string
		registry   string
		subject    string
		timeout    time.Duration
		schemaRoot string
		version    string
		useSyslog  bool
	)

	pf := RootCmd.PersistentFlags()

	pf.StringVar(&cfgFile, "config", "", "Path of config file")
	pf.StringVar(&registry, "registry.url", "", "Schema registry endpoint")
	pf.StringVar(&subject, "registry.subject", defaultSubject, "Schema registry subject of the alert schema")
	pf.DurationVar(&timeout, "registry.timeout", 5*time.Second, "Timeout of schema registry requests")
	pf.StringVar(&schemaRoot, "schema.root", "", "Directory holding the schemas, instead of the packaged ones")
	pf.StringVar(&version, "schema.version", "latest", `Schema version to use ("latest" or MAJOR.MINOR)`)
	pf.StringArrayVarP(&brokerList, "brokers", "", []string{}, "Kafka brokers")
	pf.StringVar(&keyFile, "tls.key", "", "X509 key file in PEM encoding")
	pf.StringVar(&certFile, "tls.cert", "", "X509 cert file in PEM encoding")
	pf.StringVar(&caFile, "tls.caCert", "", "X509 Root CA file in PEM encoding")
	pf.BoolVar(&useSyslog, "log.syslog", false, "Also log to syslog")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	pf.BoolVarP(&formatAsTable, "table", "t", false, "Format output as table (if possible)")
	pf.BoolVarP(&formatAsYAML, "yaml", "y", false, "Format output as YAML (if possible)")

	_ = viper.BindPFlag("registry.url", pf.Lookup("registry.url"))
	_ = viper.BindPFlag("registry.subject", pf.Lookup("registry.subject"))
	_ = viper.BindPFlag("registry.timeout", pf.Lookup("registry.timeout"))
	_ = viper.BindPFlag("schema.root", pf.Lookup("schema.root"))
	_ = viper.BindPFlag("schema.version", pf.Lookup("schema.version"))
	_ = viper.BindPFlag("kafka.brokers", pf.Lookup("brokers"))
	_ = viper.BindPFlag("tls.key", pf.Lookup("tls.key"))
	_ = viper.BindPFlag("tls.cert", pf.Lookup("tls.cert"))
	_ = viper.BindPFlag("tls.caCert", pf.Lookup("tls.caCert"))
	_ = viper.BindPFlag("log.syslog", pf.Lookup("log.syslog"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// let's attempt to set a sensible default location for the config,
	// if this fails, we rely on the config file passed explicitly
	if home, err := os.UserHomeDir(); err == nil {
		viper.SetConfigName("config")
		viper.AddConfigPath(home + "/.config/alertpacket")
		viper.AddConfigPath("/opt/alertpacket/etc")
	}

	// if the config file is passed explicitly, use this instead of the default
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()

	// a missing default config file is fine, everything has a flag
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintln(os.Stderr, "Can't read config:", err)
			os.Exit(1)
		}
	}
}
