package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/open-ch/alertpacket/pkg/list"
	"github.com/open-ch/alertpacket/pkg/registry"
	"github.com/open-ch/alertpacket/pkg/stream"
)

const (
	defaultMessageCount = 25
)

func init() {
	var (
		partitions []int
		count      int64
		follow     bool
		writerOnly bool
	)

	var consumeCmd = &cobra.Command{
		Use:     "consume TOPIC",
		Aliases: []string{"monitor"},
		Short:   "Consume alerts from a Kafka topic",
		Long: `Consume alerts from a Kafka topic.

Every message is decoded with the writer schema registered under the ID in its
header, resolved against the schema selected by --schema.version. Messages
that cannot be decoded are printed with their error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic := args[0]

			return execute(func(ctx context.Context, a *app) (string, error) {
				reader, err := a.schema()
				if err != nil {
					return "", err
				}
				if writerOnly {
					reader = nil
				}

				r, err := a.registry(nil)
				if err != nil {
					return "", err
				}

				consumer, err := stream.NewConsumer(getStreamConfig(), registry.NewFramer(r, reader), a.log)
				if err != nil {
					return "", err
				}
				defer consumer.Close()

				rec, err := consumer.Monitor(ctx, stream.MonitorRequest{
					Topic:      topic,
					Partitions: convertSliceIntToInt32(partitions),
					Count:      count,
					Follow:     follow,
				})
				if err != nil {
					return "", err
				}
				defer rec.Stop()

				go func() {
					<-ctx.Done()
					rec.Stop()
				}()

				for {
					msg, err := rec.Next()
					if errors.Is(err, io.EOF) {
						return "", nil
					} else if err != nil {
						return "", err
					}

					out, err := list.FormatJSON(msg)
					if err != nil {
						return "", err
					}

					fmt.Println(out)
				}
			})
		},
	}

	RootCmd.AddCommand(consumeCmd)

	consumeCmd.Flags().Int64VarP(&count, "number", "n", defaultMessageCount, "Consumes the n last messages for each partition")
	consumeCmd.Flags().IntSliceVarP(&partitions, "partitions", "p", nil, "The partitions to consume (comma-separated), all partitions will be used if not set")
	consumeCmd.Flags().BoolVarP(&follow, "follow", "f", false, "Consume future messages when they arrive")
	consumeCmd.Flags().BoolVar(&writerOnly, "writer-schema", false, "Decode with the writer schema of each message instead of --schema.version")
}

func convertSliceIntToInt32(input []int) []int32 {
	res := make([]int32, len(input))
	for i := range input {
		res[i] = int32(input[i])
	}

	return res
}
