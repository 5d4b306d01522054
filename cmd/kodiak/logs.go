// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"

	"github.com/AleutianAI/KodiakChat/services/chat/datatypes"
	"github.com/spf13/cobra"
)

func newLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Operational log snapshot commands",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Force an immediate refresh of the server's log snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := postJSON(serverURL+"/v1/logs/refresh", struct{}{})
			if err != nil {
				return err
			}
			defer body.Close()

			var resp datatypes.RefreshResponse
			if err := json.NewDecoder(body).Decode(&resp); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", resp.Status, resp.Message)
			return nil
		},
	})
	return cmd
}
