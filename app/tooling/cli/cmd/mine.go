package cmd

import (
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Ask the node to mine a new block.",
	Run: func(cmd *cobra.Command, args []string) {
		if err := call(os.Stdout, http.MethodGet, url+"/v1/mine", nil); err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(mineCmd)
}
