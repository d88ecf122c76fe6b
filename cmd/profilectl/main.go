package main

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"tigertrust/internal/config"
	"tigertrust/internal/domain"
	"tigertrust/internal/profile"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "profilectl",
		Short:         "Offline tools for TigerTrust user profiles",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newDeriveCmd(), newDecodeCmd(), newTierCmd())
	return root
}

func newDeriveCmd() *cobra.Command {
	var programID string
	cmd := &cobra.Command{
		Use:   "derive <owner>",
		Short: "Print the profile address and proof for an owner key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			namespace, err := domain.ParsePubkey(programID)
			if err != nil {
				return fmt.Errorf("invalid program id: %w", err)
			}
			owner, err := domain.ParsePubkey(args[0])
			if err != nil {
				return fmt.Errorf("invalid owner: %w", err)
			}

			addr, proof, err := profile.NewDeriver(namespace).FindAddress(profile.ProfileLabel, owner)
			if err != nil {
				return fmt.Errorf("failed to derive address: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "address: %s\nproof:   %d\n", addr, proof)
			return nil
		},
	}
	cmd.Flags().StringVar(&programID, "program-id", config.DefaultProgramID, "namespace key used for derivation")
	return cmd
}

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <hex|base64>",
		Short: "Decode a stored profile record and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := decodeBytes(args[0])
			if err != nil {
				return err
			}
			p, err := profile.Decode(raw)
			if err != nil {
				return fmt.Errorf("failed to decode record: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(p)
		},
	}
}

func newTierCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tier <score>",
		Short: "Print the tier band a score falls in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			score, err := strconv.ParseUint(args[0], 10, 16)
			if err != nil || score > domain.MaxScore {
				return fmt.Errorf("score must be between 0 and %d", domain.MaxScore)
			}
			fmt.Fprintln(cmd.OutOrStdout(), domain.TierForScore(uint16(score)))
			return nil
		},
	}
}

func decodeBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if b, err := hex.DecodeString(s); err == nil {
		return b, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("record is neither hex nor base64")
	}
	return b, nil
}
