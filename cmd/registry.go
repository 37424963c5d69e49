package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/open-ch/alertpacket/pkg/packet"
	"github.com/open-ch/alertpacket/pkg/registry"
)

type registeredSchema struct {
	ID          int    `header:"ID" json:"id"`
	Subject     string `header:"Subject" json:"subject,omitempty"`
	Version     int    `header:"Version" json:"version,omitempty"`
	Name        string `header:"Name" json:"name"`
	Fingerprint string `header:"Fingerprint" json:"fingerprint"`
}

type syncResult struct {
	Version string `header:"Schema" json:"schema"`
	Subject string `header:"Subject" json:"subject"`
	ID      int    `header:"ID" json:"id"`
}

func init() {
	var showDefinition bool

	var registryCmd = &cobra.Command{
		Use:   "registry",
		Short: "Interact with the schema registry",
	}

	var listCmd = &cobra.Command{
		Use:   "list",
		Short: "List all registered schema subjects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeWithRegistry(func(_ context.Context, _ *app, r registry.Registry) (string, error) {
				subjects, err := r.Subjects()
				if err != nil {
					return "", err
				}

				return format(subjects, false)
			})
		},
	}

	var getCmd = &cobra.Command{
		Use:   "get ID",
		Short: "Get the schema registered under the given ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return errors.Errorf("invalid schema ID %q", args[0])
			}

			return executeWithRegistry(func(_ context.Context, _ *app, r registry.Registry) (string, error) {
				s, err := r.SchemaByID(id)
				if err != nil {
					return "", err
				}

				return formatSchema(registry.Entry{ID: id, Schema: s}, showDefinition)
			})
		},
	}

	var latestCmd = &cobra.Command{
		Use:   "latest [SUBJECT]",
		Short: "Get the latest schema registered under a subject",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subject := subjectArg(args)

			return executeWithRegistry(func(_ context.Context, _ *app, r registry.Registry) (string, error) {
				e, err := r.Latest(subject)
				if err != nil {
					return "", err
				}

				return formatSchema(e, showDefinition)
			})
		},
	}

	var versionsCmd = &cobra.Command{
		Use:   "versions [SUBJECT]",
		Short: "List the versions registered under a subject",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subject := subjectArg(args)

			return executeWithRegistry(func(_ context.Context, _ *app, r registry.Registry) (string, error) {
				versions, err := r.Versions(subject)
				if err != nil {
					return "", err
				}

				var entries []registeredSchema
				for _, v := range versions {
					e, err := r.SchemaByVersion(subject, v)
					if err != nil {
						return "", err
					}
					entries = append(entries, toRegisteredSchema(e))
				}

				return formatWithCaption(entries, true, subject)
			})
		},
	}

	var syncLatestCmd = &cobra.Command{
		Use:   "sync-latest",
		Short: "Register the latest packaged schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeWithRegistry(func(_ context.Context, a *app, r registry.Registry) (string, error) {
				s, err := a.store.Current()
				if err != nil {
					return "", err
				}

				res, err := register(r, s)
				if err != nil {
					return "", err
				}

				return format([]syncResult{res}, true)
			})
		},
	}

	var syncAllCmd = &cobra.Command{
		Use:   "sync-all",
		Short: "Register every packaged schema in ascending version order",
		Long: `Register every packaged schema in ascending version order.

The packaged versions are checked for compatibility first. The registry
assigns IDs and subject versions itself.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeWithRegistry(func(ctx context.Context, a *app, r registry.Registry) (string, error) {
				if err := a.store.CheckCompatibility(); err != nil {
					return "", errors.WithMessage(err, "refusing to sync incompatible schemas")
				}

				versions, err := a.store.Versions()
				if err != nil {
					return "", err
				}

				var results []syncResult
				for _, v := range versions {
					if ctx.Err() != nil {
						return "", ctx.Err()
					}

					s, err := a.store.Load(v)
					if err != nil {
						return "", err
					}

					res, err := register(r, s)
					if err != nil {
						return "", err
					}
					results = append(results, res)
				}

				return formatWithCaption(results, true, fmt.Sprintf("%d schemas registered", len(results)))
			})
		},
	}

	getCmd.Flags().BoolVar(&showDefinition, "definition", false, "Include the schema definition")
	latestCmd.Flags().BoolVar(&showDefinition, "definition", false, "Include the schema definition")

	registryCmd.AddCommand(listCmd, getCmd, latestCmd, versionsCmd, syncLatestCmd, syncAllCmd)
	RootCmd.AddCommand(registryCmd)
}

func executeWithRegistry(fun func(ctx context.Context, a *app, r registry.Registry) (string, error)) error {
	return execute(func(ctx context.Context, a *app) (string, error) {
		r, err := a.registry(nil)
		if err != nil {
			return "", err
		}
		return fun(ctx, a, r)
	})
}

func subjectArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return viper.GetString("registry.subject")
}

func register(r registry.Registry, s *packet.Schema) (syncResult, error) {
	subject := viper.GetString("registry.subject")

	id, err := r.Register(subject, s)
	if err != nil {
		return syncResult{}, errors.WithMessagef(err, "cannot register schema %s", s.Version())
	}

	return syncResult{Version: s.Version().String(), Subject: subject, ID: id}, nil
}

func toRegisteredSchema(e registry.Entry) registeredSchema {
	return registeredSchema{
		ID:          e.ID,
		Subject:     e.Subject,
		Version:     e.Version,
		Name:        e.Schema.Name(),
		Fingerprint: fmt.Sprintf("%016x", e.Schema.Fingerprint()),
	}
}

func formatSchema(e registry.Entry, definition bool) (string, error) {
	if definition {
		return e.Schema.String(), nil
	}
	return format([]registeredSchema{toRegisteredSchema(e)}, true)
}
