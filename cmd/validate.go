package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/open-ch/alertpacket/pkg/packet"
)

type sizeReport struct {
	Message    int `header:"JSON (excl. cutouts)" unit:"bytes" json:"message"`
	Cutouts    int `header:"Cutouts" unit:"bytes" json:"cutouts"`
	Total      int `header:"Total" unit:"bytes" json:"total"`
	Avro       int `header:"Avro (incl. cutouts)" unit:"bytes" json:"avro"`
	Difference int `header:"Difference" unit:"bytes" json:"difference"`
}

func init() {
	var (
		inputData string
		cutouts   = map[string]*string{
			packet.CutoutDifference: new(string),
			packet.CutoutScience:    new(string),
			packet.CutoutTemplate:   new(string),
		}
		printAlert bool
	)

	var validateCmd = &cobra.Command{
		Use:   "validate",
		Short: "Round-trip an alert through serialization",
		Long: `Round-trip an alert through serialization.

The alert is read from --input-data, or from the sample shipped with the
selected schema version, serialized together with the given cutouts and
decoded again. The command fails unless the decoded alert serializes to the
same bytes and every cutout is preserved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(func(_ context.Context, a *app) (string, error) {
				schema, err := a.schema()
				if err != nil {
					return "", err
				}

				var data []byte
				if inputData != "" {
					data, err = os.ReadFile(inputData)
				} else {
					data, err = a.store.SampleData(schema.Version())
				}
				if err != nil {
					return "", err
				}

				rec, err := packet.FromJSON(data, schema)
				if err != nil {
					return "", err
				}

				for _, name := range []string{packet.CutoutDifference, packet.CutoutScience, packet.CutoutTemplate} {
					if *cutouts[name] == "" {
						continue
					}
					c, err := packet.LoadCutout(*cutouts[name], name)
					if err != nil {
						return "", err
					}
					rec.Cutouts = append(rec.Cutouts, c)
				}

				msg, report, err := roundTrip(rec, schema)
				if err != nil {
					return "", err
				}

				if printAlert {
					return format(map[string]interface{}{"sizes": report, "alert": msg.Fields}, false)
				}
				return format([]sizeReport{report}, true)
			})
		},
	}

	f := validateCmd.Flags()
	f.StringVar(&inputData, "input-data", "", "Path to a file containing schema-compliant JSON data to serialize")
	f.StringVar(cutouts[packet.CutoutDifference], "cutout-difference", "", "File for difference image postage stamp")
	f.StringVar(cutouts[packet.CutoutScience], "cutout-science", "", "File for science image postage stamp")
	f.StringVar(cutouts[packet.CutoutTemplate], "cutout-template", "", "File for template image postage stamp")
	f.BoolVar(&printAlert, "print", false, "Print the decoded alert")

	RootCmd.AddCommand(validateCmd)
}

func roundTrip(rec packet.AlertRecord, schema *packet.Schema) (packet.AlertRecord, sizeReport, error) {
	encoded, err := packet.Serialize(rec, schema)
	if err != nil {
		return packet.AlertRecord{}, sizeReport{}, err
	}

	resolved, err := packet.Resolve(schema, schema)
	if err != nil {
		return packet.AlertRecord{}, sizeReport{}, err
	}

	msg, err := packet.Deserialize(encoded, resolved)
	if err != nil {
		return packet.AlertRecord{}, sizeReport{}, err
	}

	again, err := packet.Serialize(msg, schema)
	if err != nil {
		return packet.AlertRecord{}, sizeReport{}, errors.WithMessage(err, "decoded alert")
	}
	if !bytes.Equal(encoded, again) {
		return packet.AlertRecord{}, sizeReport{}, errors.New("decoded alert does not serialize to the original bytes")
	}

	var report sizeReport
	for _, c := range rec.Cutouts {
		got, ok := msg.Cutout(c.Name)
		if !ok || !bytes.Equal(got.Data, c.Data) {
			return packet.AlertRecord{}, sizeReport{}, errors.Errorf("cutout %s was not preserved", c.Name)
		}
		report.Cutouts += len(c.Data)
	}

	plain, err := json.Marshal(msg.Fields)
	if err != nil {
		return packet.AlertRecord{}, sizeReport{}, errors.Wrap(err, "cannot encode alert as JSON")
	}
	report.Message = len(plain)
	report.Total = report.Message + report.Cutouts
	report.Avro = len(encoded)
	report.Difference = report.Total - report.Avro

	return msg, report, nil
}
