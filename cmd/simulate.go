package cmd

import (
	"context"
	"math/rand"
	"os"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/open-ch/alertpacket/pkg/packet"
)

const (
	formatContainer = "container"
	formatOCF       = "ocf"
)

type simulationReport struct {
	File    string `header:"File" json:"file"`
	Format  string `header:"Format" json:"format"`
	Version string `header:"Schema" json:"schema"`
	Alerts  int    `header:"Alerts" json:"alerts"`
	Bytes   int64  `header:"Bytes" unit:"bytes" json:"bytes"`
}

func init() {
	var (
		visitsPerYear int
		numAlerts     int
		profile       string
		seed          int64
		fileFormat    string
	)

	var simulateCmd = &cobra.Command{
		Use:   "simulate OUTPUT",
		Short: "Write a file of random alerts",
		Long: `Write a file of random alerts valid under the selected schema.

The file is read back after writing and compared with the generated alerts.
Cutouts are attached in the container format only.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := args[0]

			return execute(func(_ context.Context, a *app) (string, error) {
				schema, err := a.schema()
				if err != nil {
					return "", err
				}

				sim := packet.DefaultSimulator(visitsPerYear)
				if profile != "" {
					if sim, err = packet.LoadSimulator(profile); err != nil {
						return "", err
					}
					sim.WithVisits(visitsPerYear)
				}
				if fileFormat == formatOCF {
					sim.Cutouts = nil
				}

				if seed == 0 {
					seed = time.Now().UnixNano()
				}
				a.log.WithField("seed", seed).Debug("Simulating alerts")

				alerts := sim.SimulateMany(schema, rand.New(rand.NewSource(seed)), numAlerts)
				for i, alert := range alerts {
					if err := packet.Validate(alert, schema); err != nil {
						return "", &packet.RecordError{Index: i, Err: err}
					}
				}

				loaded, writer, err := writeAndReadBack(output, fileFormat, schema, alerts)
				if err != nil {
					return "", err
				}

				if !schema.Equal(writer) {
					return "", errors.New("schema read back differs from the schema written")
				}
				if len(loaded) != len(alerts) {
					return "", errors.Errorf("read back %d alerts instead of %d", len(loaded), len(alerts))
				}
				for i := range alerts {
					if diff := cmp.Diff(alerts[i], loaded[i], cmpopts.EquateEmpty()); diff != "" {
						return "", errors.Errorf("alert %d differs after reading back (-written +read):\n%s", i, diff)
					}
				}

				info, err := os.Stat(output)
				if err != nil {
					return "", errors.Wrapf(err, "cannot stat %s", output)
				}

				return format([]simulationReport{{
					File:    output,
					Format:  fileFormat,
					Version: schema.Version().String(),
					Alerts:  len(alerts),
					Bytes:   info.Size(),
				}}, true)
			})
		},
	}

	f := simulateCmd.Flags()
	// default based on LSE-81
	f.IntVar(&visitsPerYear, "visits-per-year", 1056/10, "Number of visits per year")
	f.IntVar(&numAlerts, "num-alerts", 10, "Number of simulated alert packets to generate")
	f.StringVar(&profile, "profile", "", "YAML simulation profile (keepNull, arrayCount, cutouts)")
	f.Int64Var(&seed, "seed", 0, "Random seed, 0 picks one")
	f.StringVar(&fileFormat, "format", formatContainer, "Output format: container or ocf")

	RootCmd.AddCommand(simulateCmd)
}

func writeAndReadBack(path, fileFormat string, schema *packet.Schema, alerts []packet.AlertRecord) ([]packet.AlertRecord, *packet.Schema, error) {
	switch fileFormat {
	case formatContainer:
		if err := packet.StoreFile(path, schema, alerts); err != nil {
			return nil, nil, err
		}
		writer, loaded, err := packet.RetrieveFile(path, nil, nil)
		return loaded, writer, err

	case formatOCF:
		if err := writeOCFFile(path, schema, alerts); err != nil {
			return nil, nil, err
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "cannot open %s", path)
		}
		defer f.Close()

		// the OCF header only carries the canonical form
		_, loaded, err := packet.ReadOCF(f, schema, nil)
		return loaded, schema, err
	}

	return nil, nil, errors.Errorf("unknown format %q", fileFormat)
}

func writeOCFFile(path string, schema *packet.Schema, alerts []packet.AlertRecord) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "cannot create %s", path)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = errors.Wrapf(cerr, "cannot close %s", path)
		}
	}()

	return packet.WriteOCF(f, schema, alerts)
}
