package dispatch

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// requestEnvelope is the wire shape every inbound line is first parsed
// into, before being resolved to one of the concrete Request types below.
type requestEnvelope struct {
	Type          string `json:"type"`
	Pid           uint32 `json:"pid"`
	RepoDirPath   string `json:"repo_dir_path"`
	Pattern       string `json:"pattern"`
	CaseSensitive *bool  `json:"case_sensitive"`
}

// Request is the tagged union of inbound request shapes.
type Request interface {
	tenant() string
}

// AllocPid registers a new tenant rooted at Root.
type AllocPid struct {
	Tenant string
	Root   string
}

func (r AllocPid) tenant() string { return r.Tenant }

// RequestRipgrep runs a search against an already-registered tenant.
type RequestRipgrep struct {
	Tenant        string
	Pattern       string
	CaseSensitive bool
}

func (r RequestRipgrep) tenant() string { return r.Tenant }

// parseRequest decodes a single newline-delimited JSON record into a
// Request. Unknown fields are ignored by encoding/json's default behavior;
// case_sensitive defaults to false when omitted.
func parseRequest(line []byte) (Request, error) {
	var envelope requestEnvelope
	if err := json.Unmarshal(line, &envelope); err != nil {
		return nil, errors.Wrap(err, "malformed request")
	}

	tenant := strconv.FormatUint(uint64(envelope.Pid), 10)

	switch envelope.Type {
	case "alloc_pid":
		return AllocPid{Tenant: tenant, Root: envelope.RepoDirPath}, nil
	case "request_ripgrep":
		caseSensitive := false
		if envelope.CaseSensitive != nil {
			caseSensitive = *envelope.CaseSensitive
		}
		return RequestRipgrep{Tenant: tenant, Pattern: envelope.Pattern, CaseSensitive: caseSensitive}, nil
	default:
		return nil, errors.Errorf("unknown request type %q", envelope.Type)
	}
}

// Response is the single reply message shape, written newline-delimited
// JSON on a tenant's reply stream.
type Response struct {
	Status int    `json:"response_status"`
	Text   string `json:"text,omitempty"`
	Error  string `json:"error,omitempty"`
}

func success(text string) Response { return Response{Status: 1, Text: text} }
func failure(err string) Response  { return Response{Status: 0, Error: err} }

// writeResponse marshals resp and writes it newline-terminated to w.
func writeResponse(w io.Writer, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return errors.Wrap(err, "unable to marshal response")
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
