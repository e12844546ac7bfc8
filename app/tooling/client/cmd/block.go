package cmd

import (
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	blockID  string
	blockTxs bool
)

var blockCmd = &cobra.Command{
	Use:   "block",
	Short: "Print a block by id.",
	Run: func(cmd *cobra.Command, args []string) {
		resp, err := http.Get(fmt.Sprintf("%s/v1/eth/block/%s?txs=%t", url, blockID, blockTxs))
		if err != nil {
			log.Fatal(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			log.Fatal(err)
		}

		fmt.Println(string(body))
	},
}

func init() {
	rootCmd.AddCommand(blockCmd)
	blockCmd.Flags().StringVarP(&blockID, "id", "i", "latest", "Block id: latest, earliest, a number, or a hash.")
	blockCmd.Flags().BoolVar(&blockTxs, "txs", false, "Include full transaction records.")
}
