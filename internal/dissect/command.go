package dissect

import (
	"fmt"
	"net/url"
	"strings"
)

// Tool binary names. The binaries are external collaborators installed on
// the worker host; this package only constructs their argument vectors.
const (
	RdumpTool       = "rdump"
	TargetQueryTool = "target-query"
)

// CommandSpec is one external-process invocation: an ordered argument
// vector whose first element is the tool binary. When OutputPath is set,
// the tool's standard output must be streamed to that file.
//
// Argument ordering is part of the tools' CLI contract: binary first, then
// the input path, then mode-specific flags.
type CommandSpec struct {
	Args       []string
	OutputPath string
}

// String returns the human-readable joined form of the command, for
// logging and the result envelope only. Execution always passes Args as a
// vector; the joined form is never re-parsed.
func (c CommandSpec) String() string {
	s := strings.Join(c.Args, " ")
	if c.OutputPath != "" {
		s += " > " + c.OutputPath
	}
	return s
}

// SplunkSink is the remote forwarding destination, sourced from the
// SPLUNK_HOST and SPLUNK_PORT environment variables.
type SplunkSink struct {
	Host string
	Port string
}

// Validate checks that both sink coordinates are present. Called once per
// task invocation, before any process is spawned.
func (s SplunkSink) Validate() error {
	if s.Host == "" || s.Port == "" {
		return configf("SPLUNK_HOST and SPLUNK_PORT environment variables are required")
	}
	return nil
}

// URL renders the rdump forwarding destination for the given settings:
// splunk+<protocol>://<host>:<port> plus query parameters for sourcetype,
// token (authenticated transports only) and ssl_verify=False (https with
// SSL verification disabled).
func (s SplunkSink) URL(set *Settings) string {
	q := url.Values{}
	q.Set("sourcetype", string(set.Sourcetype))
	if set.Protocol.RequiresToken() {
		q.Set("token", set.Token)
	}
	if set.Protocol == ProtocolHTTPS && set.DisableSSL {
		q.Set("ssl_verify", "False")
	}
	return fmt.Sprintf("splunk+%s://%s:%s?%s", set.Protocol, s.Host, s.Port, q.Encode())
}

// JSONLCommand builds the simple-transform invocation: rdump emits
// line-delimited JSON records on stdout.
func JSONLCommand(inputPath string) CommandSpec {
	return CommandSpec{Args: []string{RdumpTool, inputPath, "-J"}}
}

// SplunkCommand builds the forward-to-remote-sink invocation.
func SplunkCommand(inputPath string, set *Settings, sink SplunkSink) CommandSpec {
	return CommandSpec{Args: []string{RdumpTool, inputPath, "-w", sink.URL(set)}}
}

// QueryCommand builds the structured-export invocation: target-query runs
// the selected plugins against the input and dumps records to outputPath.
func QueryCommand(inputPath string, set *Settings, outputPath string) CommandSpec {
	return CommandSpec{
		Args:       []string{TargetQueryTool, inputPath, "-f", strings.Join(set.Plugins, ","), "-q"},
		OutputPath: outputPath,
	}
}
