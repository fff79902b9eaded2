// cmd_serve.go - Query-Server
// Hauptfunktionen: RunServer
package cmd

import (
	"net"

	"github.com/spf13/cobra"

	"github.com/7blacky7/ngramlm/envconfig"
	"github.com/7blacky7/ngramlm/server"
)

// newServeCmd - Erstellt den serve Command
func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:     "serve MODEL",
		Aliases: []string{"start"},
		Short:   "Answer scoring requests over HTTP",
		Args:    cobra.ExactArgs(1),
		RunE:    RunServer,
	}
	serveCmd.Flags().String("type", "probing", "Model type when MODEL is an ARPA file: probing or trie")
	return serveCmd
}

// RunServer - Laedt das Modell und startet den Server auf NGRAMLM_HOST
func RunServer(cmd *cobra.Command, args []string) error {
	m, err := loadModel(cmd, args[0])
	if err != nil {
		return err
	}
	defer m.Close()

	ln, err := net.Listen("tcp", envconfig.Host().Host)
	if err != nil {
		return err
	}

	return server.New(m, args[0]).Serve(ln)
}
