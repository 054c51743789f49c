package cmd

import (
	"io"
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var (
	sender    string
	recipient string
	amount    float64
)

var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Submit a transaction to the node.",
	Run:   txRun,
}

func init() {
	rootCmd.AddCommand(txCmd)
	txCmd.Flags().StringVarP(&sender, "sender", "s", "", "Address sending the amount.")
	txCmd.Flags().StringVarP(&recipient, "recipient", "r", "", "Address receiving the amount.")
	txCmd.Flags().Float64VarP(&amount, "amount", "a", 0, "Amount to send.")
	txCmd.MarkFlagRequired("sender")
	txCmd.MarkFlagRequired("recipient")
	txCmd.MarkFlagRequired("amount")
}

func txRun(cmd *cobra.Command, args []string) {
	if err := submitTx(os.Stdout, url, sender, recipient, amount); err != nil {
		log.Fatal(err)
	}
}

func submitTx(out io.Writer, node string, sender string, recipient string, amount float64) error {
	tx := struct {
		Sender    string  `json:"sender"`
		Recipient string  `json:"recipient"`
		Amount    float64 `json:"amount"`
	}{
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
	}

	return call(out, http.MethodPost, node+"/v1/transactions/new", tx)
}
