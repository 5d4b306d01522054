// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cloudwatch fetches operational log text from CloudWatch Logs.
//
// The fetcher collects events from every stream of a log group over a
// lookback window, sorts them by timestamp, and formats them into one
// multi-line blob for the log aggregator. "Log group missing" and "no
// events" are reported as sentinel strings, not errors, since absent
// logs are an expected condition rather than a failure.
package cloudwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("kodiak.cloudwatch")

// maxEvents caps how many log events one fetch collects, to bound
// memory on noisy log groups.
const maxEvents = 10000

// eventSeparator is the dashed rule written between formatted events.
var eventSeparator = strings.Repeat("-", 80)

// timestampLayout formats event timestamps with millisecond precision.
const timestampLayout = "2006-01-02 15:04:05.000"

// LogFetchError wraps CloudWatch API failures so callers can tell them
// apart from collaborator errors elsewhere in the pipeline.
type LogFetchError struct {
	Operation string
	Err       error
}

// Error implements the error interface for LogFetchError.
func (e *LogFetchError) Error() string {
	return fmt.Sprintf("cloudwatch %s failed: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *LogFetchError) Unwrap() error { return e.Err }

// logsAPI is the slice of the CloudWatch Logs client the fetcher uses.
// Narrowed for testability.
type logsAPI interface {
	DescribeLogStreams(ctx context.Context, params *cloudwatchlogs.DescribeLogStreamsInput,
		optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogStreamsOutput, error)
	GetLogEvents(ctx context.Context, params *cloudwatchlogs.GetLogEventsInput,
		optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetLogEventsOutput, error)
}

// Fetcher retrieves and formats log text from CloudWatch Logs.
// Implements logwatch.Fetcher. Safe for concurrent use.
type Fetcher struct {
	client logsAPI
}

// NewFetcher creates a Fetcher backed by a real CloudWatch Logs client.
func NewFetcher(cfg aws.Config) *Fetcher {
	return &Fetcher{client: cloudwatchlogs.NewFromConfig(cfg)}
}

// newFetcherWithClient creates a Fetcher with an injected client.
// Used by tests.
func newFetcherWithClient(client logsAPI) *Fetcher {
	return &Fetcher{client: client}
}

// LambdaLogGroup returns the CloudWatch log group name for a Lambda
// function ("/aws/lambda/<function>").
func LambdaLogGroup(functionName string) string {
	return "/aws/lambda/" + functionName
}

// FetchLogs retrieves all log events for the group within the lookback
// window and formats them as one string.
//
// # Description
//
// Streams are listed most-recently-active first; events are collected
// per stream (up to maxEvents overall), merged, sorted ascending by
// timestamp, and rendered as
//
//	[<timestamp>] [<stream>]
//	<message>
//	--------...
//
// A missing log group or an empty window yields a sentinel string and a
// nil error. Per-stream read failures are logged and skipped so one bad
// stream does not discard the rest.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeouts.
//   - logGroup: CloudWatch log group name.
//   - lookback: Window ending now, e.g. 24h.
//
// # Outputs
//
//   - string: Formatted log text, or a sentinel (see above).
//   - error: *LogFetchError for API failures other than "not found".
func (f *Fetcher) FetchLogs(ctx context.Context, logGroup string, lookback time.Duration) (string, error) {
	ctx, span := tracer.Start(ctx, "Fetcher.FetchLogs")
	defer span.End()
	span.SetAttributes(
		attribute.String("logs.group", logGroup),
		attribute.String("logs.lookback", lookback.String()),
	)

	end := time.Now()
	start := end.Add(-lookback)

	streamsOut, err := f.client.DescribeLogStreams(ctx, &cloudwatchlogs.DescribeLogStreamsInput{
		LogGroupName: aws.String(logGroup),
		OrderBy:      cwtypes.OrderByLastEventTime,
		Descending:   aws.Bool(true),
	})
	if err != nil {
		var notFound *cwtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			span.SetAttributes(attribute.Bool("logs.group_missing", true))
			return fmt.Sprintf("Log group not found: %s", logGroup), nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "describe log streams failed")
		return "", &LogFetchError{Operation: "DescribeLogStreams", Err: err}
	}

	if len(streamsOut.LogStreams) == 0 {
		return fmt.Sprintf("No log streams found for log group: %s", logGroup), nil
	}

	type event struct {
		timestamp int64
		stream    string
		message   string
	}
	var events []event

	for _, stream := range streamsOut.LogStreams {
		streamName := aws.ToString(stream.LogStreamName)

		eventsOut, err := f.client.GetLogEvents(ctx, &cloudwatchlogs.GetLogEventsInput{
			LogGroupName:  aws.String(logGroup),
			LogStreamName: aws.String(streamName),
			StartTime:     aws.Int64(start.UnixMilli()),
			EndTime:       aws.Int64(end.UnixMilli()),
			Limit:         aws.Int32(maxEvents),
		})
		if err != nil {
			// One unreadable stream should not discard the others.
			slog.Warn("Failed to read log stream, skipping",
				"log_group", logGroup, "stream", streamName, "error", err)
			continue
		}

		for _, ev := range eventsOut.Events {
			events = append(events, event{
				timestamp: aws.ToInt64(ev.Timestamp),
				stream:    streamName,
				message:   strings.TrimSpace(aws.ToString(ev.Message)),
			})
		}

		if len(events) >= maxEvents {
			slog.Warn("Reached maximum log event limit, older events omitted",
				"log_group", logGroup, "limit", maxEvents)
			break
		}
	}

	if len(events) == 0 {
		return "No log events found in the specified time range.", nil
	}

	// Streams were fetched newest-first; present events oldest-first.
	// Stable so same-millisecond events keep their per-stream order.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].timestamp < events[j].timestamp
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d log events:\n", len(events))
	b.WriteString(eventSeparator + "\n")
	for _, ev := range events {
		ts := time.UnixMilli(ev.timestamp).Format(timestampLayout)
		fmt.Fprintf(&b, "[%s] [%s]\n%s\n%s\n", ts, ev.stream, ev.message, eventSeparator)
	}

	span.SetAttributes(attribute.Int("logs.event_count", len(events)))
	return b.String(), nil
}
