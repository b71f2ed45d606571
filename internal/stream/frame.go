// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package stream

import (
	"bufio"
	"strings"
)

// dataPrefix is the scalar-payload prefix of a frame line.
const dataPrefix = "data:"

// endMarker is the literal payload that closes a stream cleanly.
const endMarker = "[DONE]"

// readFrame reads one record from the progress stream. Records are groups of
// lines terminated by a blank line; lines carrying the data prefix contribute
// to the payload, everything else (comments, field names we do not use) is
// ignored. Returns done=true when the record is the literal end marker.
//
// An error (including io.EOF) before a complete record is a transport
// failure and is surfaced to the reconnect logic as-is.
func readFrame(r *bufio.Reader) (payload string, done bool, err error) {
	var parts []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", false, err
		}
		line = strings.TrimRight(line, "\r\n")

		// Blank line terminates the record.
		if line == "" {
			if len(parts) == 0 {
				// Stray separators between records are tolerated.
				continue
			}
			break
		}

		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		parts = append(parts, strings.TrimSpace(strings.TrimPrefix(line, dataPrefix)))
	}

	payload = strings.Join(parts, "\n")
	if payload == endMarker {
		return "", true, nil
	}
	return payload, false, nil
}
