package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/open-ch/alertpacket/pkg/packet"
)

type schemaInfo struct {
	Version     string `header:"Version" json:"version"`
	Name        string `header:"Name" json:"name"`
	Fields      int    `header:"Fields" json:"fields"`
	Fingerprint string `header:"Fingerprint" json:"fingerprint"`
	Latest      bool   `header:"Latest" json:"latest"`
}

type compatibilityResult struct {
	Versions []string `json:"versions"`
	Status   string   `json:"status"`
}

func init() {
	var schemasCmd = &cobra.Command{
		Use:   "schemas",
		Short: "Inspect the packaged alert schemas",
	}

	var listCmd = &cobra.Command{
		Use:   "list",
		Short: "List the packaged schema versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(func(_ context.Context, a *app) (string, error) {
				infos, err := listSchemas(a.store)
				if err != nil {
					return "", err
				}
				return formatWithCaption(infos, true, fmt.Sprintf("%d schema versions", len(infos)))
			})
		},
	}

	var checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Check that every version reads the data of the earlier versions of its major line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(func(_ context.Context, a *app) (string, error) {
				if err := a.store.CheckCompatibility(); err != nil {
					return "", err
				}

				versions, err := a.store.Versions()
				if err != nil {
					return "", err
				}
				res := compatibilityResult{Status: "compatible"}
				for _, v := range versions {
					res.Versions = append(res.Versions, v.String())
				}
				return format(res, false)
			})
		},
	}

	schemasCmd.AddCommand(listCmd, checkCmd)
	RootCmd.AddCommand(schemasCmd)
}

func listSchemas(store *packet.Store) ([]schemaInfo, error) {
	versions, err := store.Versions()
	if err != nil {
		return nil, err
	}
	latest, err := store.LatestVersion()
	if err != nil {
		return nil, err
	}

	infos := make([]schemaInfo, 0, len(versions))
	for _, v := range versions {
		s, err := store.Load(v)
		if err != nil {
			return nil, err
		}
		infos = append(infos, schemaInfo{
			Version:     v.String(),
			Name:        s.Name(),
			Fields:      len(s.Fields()),
			Fingerprint: fmt.Sprintf("%016x", s.Fingerprint()),
			Latest:      v == latest,
		})
	}
	return infos, nil
}
