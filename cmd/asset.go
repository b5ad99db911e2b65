package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var assetCmd = &cobra.Command{
	Use:   "asset",
	Short: "Move binary assets through the CDN pipeline",
}

var assetUploadCmd = &cobra.Command{
	Use:   "upload [project] [file]",
	Short: "Upload a file and print its CDN handle",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		handle, err := client().UploadAsset(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}

		fmt.Printf("url:      %s\n", handle.URL)
		fmt.Printf("size:     %s (%s)\n", humanize.IBytes(uint64(handle.Size)), handle.MimeType)
		fmt.Printf("checksum: %s\n", handle.Checksum)
		fmt.Printf("expires:  %s\n", handle.ExpiresAt.Local().Format("2006-01-02"))
		return nil
	},
}

var assetDownloadCmd = &cobra.Command{
	Use:   "download [url] [dest]",
	Short: "Download an asset by its CDN url",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client().DownloadAsset(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}

		fmt.Printf("saved %s\n", args[1])
		return nil
	},
}

func init() {
	assetCmd.AddCommand(assetUploadCmd, assetDownloadCmd)
	rootCmd.AddCommand(assetCmd)
}
