package protocol

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Querier is the status side of a streaming server's HTTP interface.
type Querier interface {
	ServerInfo(ctx context.Context, address string) (*ServerInfo, error)
	AppList(ctx context.Context, address string) ([]AppInfo, error)
}

const (
	PathServerInfo = "/serverinfo"
	PathAppList    = "/applist"

	// busySuffix marks a server state with a running game
	busySuffix = "_SERVER_BUSY"
	// zeroMAC is what servers report when they cannot determine their MAC
	zeroMAC = "00:00:00:00:00:00"
)

var (
	// ErrMalformed is returned when a response is not a <root> document
	ErrMalformed = errors.New("protocol: malformed response")
)

// StatusError is a well-formed response whose status_code is not 200.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("protocol: server returned status %d: %s", e.Code, e.Message)
}

// ServerInfo is the parsed /serverinfo document. Absent elements are empty.
type ServerInfo struct {
	Hostname               string `xml:"hostname"`
	UniqueID               string `xml:"uniqueid"`
	MAC                    string `xml:"mac"`
	LocalIP                string `xml:"LocalIP"`
	ExternalIP             string `xml:"ExternalIP"`
	ServerCodecModeSupport string `xml:"ServerCodecModeSupport"`
	PairStatus             string `xml:"PairStatus"`
	CurrentGame            string `xml:"currentgame"`
	State                  string `xml:"state"`
	AppVersion             string `xml:"appversion"`
	GfeVersion             string `xml:"GfeVersion"`
}

// Paired reports whether the server considers this client paired
func (s *ServerInfo) Paired() bool {
	return strings.TrimSpace(s.PairStatus) == "1"
}

// CodecSupport returns the codec bitmask, 0 when absent or unparsable
func (s *ServerInfo) CodecSupport() int {
	v, err := strconv.Atoi(strings.TrimSpace(s.ServerCodecModeSupport))
	if err != nil {
		return 0
	}
	return v
}

// CurrentGameID returns the running game, or 0 unless the server reports itself busy.
// Servers keep the last game id around after it exits.
func (s *ServerInfo) CurrentGameID() int {
	if !strings.HasSuffix(strings.TrimSpace(s.State), busySuffix) {
		return 0
	}
	v, err := strconv.Atoi(strings.TrimSpace(s.CurrentGame))
	if err != nil {
		return 0
	}
	return v
}

// HasMAC reports whether a usable MAC was reported
func (s *ServerInfo) HasMAC() bool {
	mac := strings.TrimSpace(s.MAC)
	return mac != "" && mac != zeroMAC
}

// AppInfo is one <App> entry of /applist
type AppInfo struct {
	Title          string `xml:"AppTitle"`
	ID             int    `xml:"ID"`
	IsHdrSupported int    `xml:"IsHdrSupported"`
}

// HDR reports whether the app streams in HDR
func (a AppInfo) HDR() bool {
	return a.IsHdrSupported != 0
}

// checkStatus validates the root status attributes shared by every response
func checkStatus(statusCode, statusMessage string) error {
	code, err := strconv.Atoi(strings.TrimSpace(statusCode))
	if err != nil {
		return fmt.Errorf("%w: bad status_code %q", ErrMalformed, statusCode)
	}
	if code != 200 {
		return &StatusError{Code: code, Message: statusMessage}
	}
	return nil
}

type serverInfoDoc struct {
	XMLName       xml.Name `xml:"root"`
	StatusCode    string   `xml:"status_code,attr"`
	StatusMessage string   `xml:"status_message,attr"`
	ServerInfo
}

type appListDoc struct {
	XMLName       xml.Name  `xml:"root"`
	StatusCode    string    `xml:"status_code,attr"`
	StatusMessage string    `xml:"status_message,attr"`
	Apps          []AppInfo `xml:"App"`
}

// ParseServerInfo parses a /serverinfo response body
func ParseServerInfo(data []byte) (*ServerInfo, error) {
	var doc serverInfoDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := checkStatus(doc.StatusCode, doc.StatusMessage); err != nil {
		return nil, err
	}
	if strings.TrimSpace(doc.UniqueID) == "" {
		return nil, fmt.Errorf("%w: missing uniqueid", ErrMalformed)
	}
	info := doc.ServerInfo
	return &info, nil
}

// ParseAppList parses an /applist response body
func ParseAppList(data []byte) ([]AppInfo, error) {
	var doc appListDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := checkStatus(doc.StatusCode, doc.StatusMessage); err != nil {
		return nil, err
	}
	return doc.Apps, nil
}
