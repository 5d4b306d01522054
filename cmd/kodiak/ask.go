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
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/AleutianAI/KodiakChat/services/chat/datatypes"
	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	var (
		stream      bool
		template    string
		pipeline    string
		includeLogs bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question against the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := datatypes.ChatRequest{
				Message:     strings.Join(args, " "),
				Template:    template,
				Pipeline:    pipeline,
				IncludeLogs: includeLogs,
			}
			if stream {
				return askStreaming(cmd.OutOrStdout(), &req)
			}
			return askOnce(cmd.OutOrStdout(), &req)
		},
	}

	cmd.Flags().BoolVar(&stream, "stream", false, "Stream the answer as it is produced")
	cmd.Flags().StringVar(&template, "template", "", "Custom prompt template (must contain {context})")
	cmd.Flags().StringVar(&pipeline, "pipeline", "", "Pipeline override: combined or twostep")
	cmd.Flags().BoolVar(&includeLogs, "logs", false, "Include recent operational logs in the prompt")
	return cmd
}

func askOnce(out io.Writer, req *datatypes.ChatRequest) error {
	body, err := postJSON(serverURL+"/v1/chat", req)
	if err != nil {
		return err
	}
	defer body.Close()

	var resp datatypes.ChatResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Fprintln(out, resp.Response)
	printCitations(out, resp.Citations)
	return nil
}

func askStreaming(out io.Writer, req *datatypes.ChatRequest) error {
	body, err := postJSON(serverURL+"/v1/chat/stream", req)
	if err != nil {
		return err
	}
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var frame datatypes.StreamFrame
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame); err != nil {
			return fmt.Errorf("malformed stream frame: %w", err)
		}

		switch {
		case frame.Error != "":
			fmt.Fprintln(out)
			return fmt.Errorf("server error: %s", frame.Error)
		case frame.Done:
			fmt.Fprintln(out)
			printCitations(out, frame.Citations)
			return nil
		case frame.Chunk != "":
			if !first {
				fmt.Fprint(out, " ")
			}
			fmt.Fprint(out, frame.Chunk)
			first = false
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read failed: %w", err)
	}
	return fmt.Errorf("stream ended without a done frame")
}

func postJSON(url string, req any) (io.ReadCloser, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return resp.Body, nil
}

func printCitations(out io.Writer, citations []datatypes.CitationSummary) {
	if len(citations) == 0 {
		return
	}
	fmt.Fprintln(out, "\nSources:")
	for _, c := range citations {
		fmt.Fprintf(out, "  [%d] %s\n", c.Number, c.Text)
	}
}
