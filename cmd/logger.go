package cmd

import (
	"fmt"
	"io"
	"log/syslog"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

func getLogger() *logrus.Logger {
	log := logrus.New()

	log.Level = logrus.WarnLevel
	if verbose {
		log.Level = logrus.DebugLevel
	}

	log.Out = os.Stderr
	if viper.GetBool("log.syslog") {
		sysWriter, err := syslog.New(syslog.LOG_INFO, "alertpacket")
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot get logger: %s\n", err)
			os.Exit(1)
		}
		log.Out = io.MultiWriter(os.Stderr, sysWriter)
	}

	return log
}
