package commands

import (
	"fmt"

	"github.com/mosaicnetworks/poldercast/src/crypto/keys"
	"github.com/mosaicnetworks/poldercast/src/poldercast"
	"github.com/spf13/cobra"
)

var keygenDir string

// NewKeygenCmd produces a KeygenCmd which create a key pair
func NewKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create new key pair",
		RunE:  keygen,
	}

	AddKeygenFlags(cmd)

	return cmd
}

//AddKeygenFlags adds flags to the keygen command
func AddKeygenFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&keygenDir, "datadir", _config.PolderCast.DataDir, "Directory where the private key will be written")
}

func keygen(cmd *cobra.Command, args []string) error {
	key, err := poldercast.Keygen(keygenDir)
	if err != nil {
		return err
	}

	fmt.Printf("Your private key has been saved under: %s\n", keygenDir)
	fmt.Printf("Node ID: %s\n", keys.NodeID(&key.PublicKey))
	fmt.Printf("Public key: %s\n", keys.PublicKeyHex(&key.PublicKey))

	return nil
}
