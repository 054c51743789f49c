package cmd

import (
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Print the node's full chain.",
	Run: func(cmd *cobra.Command, args []string) {
		if err := call(os.Stdout, http.MethodGet, url+"/v1/chain", nil); err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(chainCmd)
}
