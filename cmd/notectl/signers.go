package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	signersCmd := &cobra.Command{Use: "signers", Short: "Signer registry operations"}

	var writerType, writerID, keyRef, address, pubKey string
	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Register or replace a writer's verification key",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]interface{}{
				"writerType": writerType,
				"writerId":   writerID,
				"keyRef":     keyRef,
				"address":    address,
			}
			if pubKey != "" {
				payload["publicKey"] = pubKey
			}
			data, err := doPostJSON(apiFlag+"/api/signers", payload)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	registerCmd.Flags().StringVar(&writerType, "writer-type", "agent", "Writer type")
	registerCmd.Flags().StringVar(&writerID, "writer-id", "", "Writer ID (required)")
	registerCmd.Flags().StringVar(&keyRef, "key-ref", "", "Key reference (required)")
	registerCmd.Flags().StringVar(&address, "address", "", "Base64 public key address")
	registerCmd.Flags().StringVar(&pubKey, "public-key", "", "Base64 raw ed25519 public key")
	_ = registerCmd.MarkFlagRequired("writer-id")
	_ = registerCmd.MarkFlagRequired("key-ref")
	signersCmd.AddCommand(registerCmd)

	getCmd := &cobra.Command{
		Use:   "get WRITER_TYPE WRITER_ID",
		Short: "Look up a registered signer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doGet(fmt.Sprintf("%s/api/signers/%s/%s", apiFlag, args[0], args[1]))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	signersCmd.AddCommand(getCmd)

	keygenCmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ed25519 keypair (base64)",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return err
			}
			fmt.Printf("public:  %s\n", base64.StdEncoding.EncodeToString(pub))
			fmt.Printf("private: %s\n", base64.StdEncoding.EncodeToString(priv))
			return nil
		},
	}
	signersCmd.AddCommand(keygenCmd)

	rootCmd.AddCommand(signersCmd)
}
