package main

import (
	"github.com/spf13/cobra"

	"nftregistry/internal/nft/handler"
	nftservice "nftregistry/internal/nft/service"
	"nftregistry/internal/nft/store/backend"
	id "nftregistry/pkg/domain"
)

func newInspectCmd(flags *cliFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Read registry records straight from a store",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "nft <id>",
		Short: "Print one NFT record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nftID, err := id.ParseNFTID(args[0])
			if err != nil {
				return err
			}
			return withService(cmd, flags, func(svc *nftservice.Service) error {
				nft, err := svc.Get(cmd.Context(), nftID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), handler.FromNFT(nft))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "series <id>",
		Short: "Print a series and its members as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seriesID, err := id.ParseSeriesID(args[0])
			if err != nil {
				return err
			}
			return withService(cmd, flags, func(svc *nftservice.Service) error {
				details, err := svc.Series(cmd.Context(), seriesID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), handler.FromSeries(details))
			})
		},
	})
	return cmd
}

func withService(cmd *cobra.Command, flags *cliFlags, fn func(svc *nftservice.Service) error) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	b, err := backend.Open(cmd.Context(), cfg, quietLogger())
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(nftservice.New(b.Store))
}
