package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/helpdesk-bot/internal/api/dto"
	"github.com/spec-kit/helpdesk-bot/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token <staff-id>",
	Short: "Issue an ops API token for a staff member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		staffID := args[0]
		if !cfg.Staff.IsStaff(staffID) {
			return fmt.Errorf("%s is not on the staff allow-list", staffID)
		}
		tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
		token, expiresAt, err := tokens.GenerateToken(staffID)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(dto.TokenResponse{AccessToken: token, ExpiresAt: expiresAt, StaffID: staffID})
	},
}
