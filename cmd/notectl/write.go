package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/notecore/notecore/internal/envelope"
	"github.com/notecore/notecore/internal/model"
)

func init() {
	var (
		domain     string
		path       string
		file       string
		writerType string
		writerID   string
		coreID     string
		seq        int64
		idemKey    string
		keyFile    string
		keyRef     string
		fromPath   string
		skipSig    bool
	)

	writeCmd := &cobra.Command{
		Use:   "write OPERATION",
		Short: "Submit a write envelope (create, update, delete, move, merge)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env := &model.WriteEnvelope{
				Operation:     args[0],
				Domain:        domain,
				CanonicalPath: path,
				Metadata: model.EventMetadata{
					WriterType:        writerType,
					WriterID:          writerID,
					FromCanonicalPath: fromPath,
				},
				Event: model.EventInfo{
					SourceCoreID:   coreID,
					SourceSeq:      seq,
					OccurredAt:     time.Now().UTC(),
					IdempotencyKey: idemKey,
				},
			}
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				content := string(data)
				env.ContentMarkdown = &content
			}
			if idemKey == "" {
				env.Event.IdempotencyKey = fmt.Sprintf("%s:%d", coreID, seq)
			}

			if keyFile != "" {
				priv, err := loadPrivateKey(keyFile)
				if err != nil {
					return err
				}
				envelope.Sign(env, keyRef, priv)
			} else {
				env.Signature.PayloadHash = envelope.ComputePayloadHash(env)
			}

			payload := struct {
				*model.WriteEnvelope
				SkipSignatureCheck bool `json:"skipSignatureCheck,omitempty"`
			}{env, skipSig}
			data, err := doPostJSON(apiFlag+"/api/envelopes", payload)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	writeCmd.Flags().StringVarP(&domain, "domain", "d", "", "Domain (required)")
	writeCmd.Flags().StringVarP(&path, "path", "p", "", "Canonical path (required)")
	writeCmd.Flags().StringVarP(&file, "file", "f", "", "Markdown file to read content from")
	writeCmd.Flags().StringVar(&writerType, "writer-type", "agent", "Writer type")
	writeCmd.Flags().StringVar(&writerID, "writer-id", "", "Writer ID (required)")
	writeCmd.Flags().StringVar(&coreID, "core-id", "notectl", "Source core ID")
	writeCmd.Flags().Int64Var(&seq, "seq", time.Now().UnixNano(), "Source sequence number")
	writeCmd.Flags().StringVar(&idemKey, "idempotency-key", "", "Idempotency key (defaults to core-id:seq)")
	writeCmd.Flags().StringVar(&keyFile, "key", "", "Base64 ed25519 private key file for signing")
	writeCmd.Flags().StringVar(&keyRef, "key-ref", "", "Key reference recorded in the signature")
	writeCmd.Flags().StringVar(&fromPath, "from", "", "Source canonical path (move only)")
	writeCmd.Flags().BoolVar(&skipSig, "skip-signature", false, "Ask the server to skip signature verification")
	_ = writeCmd.MarkFlagRequired("domain")
	_ = writeCmd.MarkFlagRequired("path")
	_ = writeCmd.MarkFlagRequired("writer-id")
	rootCmd.AddCommand(writeCmd)
}

func loadPrivateKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("key file is not valid base64: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	return ed25519.PrivateKey(raw), nil
}
