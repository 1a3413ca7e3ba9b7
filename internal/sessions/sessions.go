// Package sessions reads the VPN server's status file and extracts the
// currently connected clients.
package sessions

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

const (
	markerClients = "CLIENT_LIST"
	markerRouting = "ROUTING_TABLE"

	// UnknownSince is reported when a record has no connected-since field.
	UnknownSince = "Unknown"
)

// ClientSession is one connected client.
type ClientSession struct {
	Name           string `json:"name"`
	RealAddress    string `json:"real_address"`
	VirtualAddress string `json:"virtual_address"`
	BytesReceived  uint64 `json:"bytes_received"`
	BytesSent      uint64 `json:"bytes_sent"`
	ConnectedSince string `json:"connected_since"`
}

// Stats describes a parse.
type Stats struct {
	Records int
	Skipped int // malformed lines inside the client section
}

// maxLine bounds one status line. Longer lines are skipped.
const maxLine = 1 << 20

// ParseClients scans a status file. Records are read from the line after a
// line starting with CLIENT_LIST up to the first line starting with
// ROUTING_TABLE. Lines with fewer than five comma-separated fields, or longer
// than maxLine, are skipped and counted. Byte counters that are not unsigned
// integers read as 0.
func ParseClients(r io.Reader) ([]ClientSession, Stats, error) {
	clients := []ClientSession{}
	var st Stats
	inside := false

	br := bufio.NewReader(r)
	for {
		line, long, err := readLine(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, st, fmt.Errorf("read status: %w", err)
		}
		switch {
		case long:
			if inside {
				st.Skipped++
			}
			continue
		case strings.HasPrefix(line, markerClients):
			inside = true
			continue
		case strings.HasPrefix(line, markerRouting):
			st.Records = len(clients)
			return clients, st, nil
		}
		if !inside || strings.TrimSpace(line) == "" {
			continue
		}
		c, ok := parseRecord(line)
		if !ok {
			st.Skipped++
			continue
		}
		clients = append(clients, c)
	}
	st.Records = len(clients)
	return clients, st, nil
}

// readLine returns the next line without its terminator. A line longer than
// maxLine is consumed and reported as long, with its text dropped. io.EOF is
// returned only when no bytes remain.
func readLine(br *bufio.Reader) (string, bool, error) {
	var b []byte
	long := false
	for {
		frag, err := br.ReadSlice('\n')
		if !long {
			if len(b)+len(frag) > maxLine+2 {
				long, b = true, nil
			} else {
				b = append(b, frag...)
			}
		}
		switch {
		case err == bufio.ErrBufferFull:
			continue
		case err == io.EOF:
			if len(b) == 0 && !long {
				return "", false, io.EOF
			}
		case err != nil:
			return "", false, err
		}
		return strings.TrimRight(string(b), "\r\n"), long, nil
	}
}

func parseRecord(line string) (ClientSession, bool) {
	f := strings.Split(line, ",")
	if len(f) < 5 {
		return ClientSession{}, false
	}
	c := ClientSession{
		Name:           f[0],
		RealAddress:    f[1],
		VirtualAddress: f[2],
		BytesReceived:  counter(f[3]),
		BytesSent:      counter(f[4]),
		ConnectedSince: UnknownSince,
	}
	if len(f) > 5 {
		c.ConnectedSince = f[5]
	}
	return c, true
}

func counter(s string) uint64 {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// ReadFile parses the status file at path. A missing file means the server
// has not written one yet and yields no sessions.
func ReadFile(path string) ([]ClientSession, Stats, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []ClientSession{}, Stats{}, nil
	}
	if err != nil {
		return nil, Stats{}, fmt.Errorf("open status file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseClients(f)
}
