// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command kodiak is a small CLI client for the chat service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var serverURL string

func main() {
	rootCmd := &cobra.Command{
		Use:   "kodiak",
		Short: "Client for the Kodiak chat service",
		Long: `kodiak talks to a running Kodiak chat service: ask questions against
the knowledge base, stream answers, and trigger log snapshot refreshes.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server",
		envOr("KODIAK_SERVER", "http://localhost:8080"),
		"Base URL of the chat service")

	rootCmd.AddCommand(newAskCmd())
	rootCmd.AddCommand(newLogsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
