package cmd

import (
	"io"
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register <private-api-address>...",
	Short: "Register peer nodes with the node.",
	Long: `Register peer nodes with the node. Each peer is given by its private API
address (default port 9080), the address that serves /v1/node/chain. A
public API address can't be used for resolving conflicts.`,
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := registerNodes(os.Stdout, url, args); err != nil {
			log.Fatal(err)
		}
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Ask the node to resolve conflicts with its peers.",
	Run: func(cmd *cobra.Command, args []string) {
		if err := call(os.Stdout, http.MethodGet, url+"/v1/nodes/resolve", nil); err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(resolveCmd)
}

func registerNodes(out io.Writer, node string, nodes []string) error {
	req := struct {
		Nodes []string `json:"nodes"`
	}{
		Nodes: nodes,
	}

	return call(out, http.MethodPost, node+"/v1/nodes/register", req)
}
