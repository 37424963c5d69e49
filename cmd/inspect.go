package cmd

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/open-ch/alertpacket/pkg/packet"
)

type inspectedAlert struct {
	Index   int                    `json:"index"`
	Fields  map[string]interface{} `json:"fields"`
	Cutouts []inspectedCutout      `json:"cutouts,omitempty"`
}

type inspectedCutout struct {
	Name  string `json:"name"`
	Bytes int    `json:"bytes"`
}

type inspectReport struct {
	Schema  string           `json:"schema"`
	Version string           `json:"version"`
	Read    int              `json:"read"`
	Failed  []string         `json:"failed,omitempty"`
	Alerts  []inspectedAlert `json:"alerts,omitempty"`
}

func init() {
	var (
		ocf       bool
		summarize bool
	)

	var inspectCmd = &cobra.Command{
		Use:   "inspect FILE",
		Short: "Print the alerts of a container or OCF file",
		Long: `Print the alerts of a container or OCF file.

The alerts are read with the schema selected by --schema.version, resolving
the schema the file was written with against it. Alerts that cannot be
decoded are reported and skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			return execute(func(_ context.Context, a *app) (string, error) {
				reader, err := a.schema()
				if err != nil {
					return "", err
				}

				f, err := os.Open(path)
				if err != nil {
					return "", errors.Wrapf(err, "cannot open %s", path)
				}
				defer f.Close()

				var report *inspectReport
				if ocf {
					report, err = inspectOCF(f, reader)
				} else {
					report, err = inspectContainer(f, reader, a)
				}
				if err != nil {
					return "", err
				}

				if summarize {
					report.Alerts = nil
				}
				return format(report, false)
			})
		},
	}

	inspectCmd.Flags().BoolVar(&ocf, "ocf", false, "Read an Avro object container file")
	inspectCmd.Flags().BoolVar(&summarize, "summary", false, "Only report counts and failures")

	RootCmd.AddCommand(inspectCmd)
}

func inspectContainer(r io.Reader, reader *packet.Schema, a *app) (*inspectReport, error) {
	cr, err := packet.NewContainerReader(r, reader, nil)
	if err != nil {
		return nil, err
	}

	report := &inspectReport{
		Schema:  cr.Schema().Name(),
		Version: cr.Schema().Version().String(),
	}
	for i := 0; ; i++ {
		rec, err := cr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			a.log.WithError(err).Warn("Skipping alert")
			report.Failed = append(report.Failed, err.Error())
			if cr.Err() != nil {
				break
			}
			continue
		}
		report.Read++
		report.Alerts = append(report.Alerts, describeAlert(i, rec))
	}

	return report, nil
}

func inspectOCF(r io.Reader, reader *packet.Schema) (*inspectReport, error) {
	writer, records, err := packet.ReadOCF(r, reader, nil)
	if writer == nil {
		return nil, err
	}

	report := &inspectReport{
		Schema:  writer.Name(),
		Version: writer.Version().String(),
		Read:    len(records),
	}
	if err != nil {
		report.Failed = append(report.Failed, err.Error())
	}
	for i, rec := range records {
		report.Alerts = append(report.Alerts, describeAlert(i, rec))
	}

	return report, nil
}

func describeAlert(i int, rec packet.AlertRecord) inspectedAlert {
	alert := inspectedAlert{Index: i, Fields: rec.Fields}
	for _, c := range rec.Cutouts {
		alert.Cutouts = append(alert.Cutouts, inspectedCutout{Name: c.Name, Bytes: len(c.Data)})
	}
	return alert
}
