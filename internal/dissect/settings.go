// Package dissect builds and validates invocations of the Dissect
// command-line tools (target-query, rdump).
package dissect

import (
	"slices"
	"strconv"
	"strings"
)

// Protocol is the transport used when forwarding records to a remote sink.
type Protocol string

const (
	ProtocolTCP   Protocol = "tcp"
	ProtocolHTTP  Protocol = "http"
	ProtocolHTTPS Protocol = "https"
)

// Protocols lists the supported forwarding transports, in the order they
// are presented to the user.
var Protocols = []Protocol{ProtocolTCP, ProtocolHTTP, ProtocolHTTPS}

// RequiresToken reports whether the transport needs an authentication token.
func (p Protocol) RequiresToken() bool {
	return p == ProtocolHTTP || p == ProtocolHTTPS
}

// Sourcetype tags forwarded records for the remote sink.
type Sourcetype string

const (
	SourcetypeRecords Sourcetype = "records"
	SourcetypeJSON    Sourcetype = "json"
)

// Sourcetypes lists the supported sourcetype values.
var Sourcetypes = []Sourcetype{SourcetypeRecords, SourcetypeJSON}

// Settings is the normalized, validated form of a raw task configuration.
// Exactly one protocol and one sourcetype are selected; plugin selection is
// always a known subset of the discovered catalog.
type Settings struct {
	Protocol   Protocol
	Sourcetype Sourcetype
	Token      string
	DisableSSL bool
	Plugins    []string
}

// NormalizeConfig validates a raw task configuration and applies defaults.
//
// Single-choice fields (protocol, sourcetype) may arrive as a scalar or a
// one-element list; a multi-element list is a configuration error naming
// the field. Enum values are case-folded before comparison. An absent
// protocol defaults to tcp, an absent sourcetype to records, and an absent
// plugin selection to the full catalog. A token is required whenever the
// protocol needs transport-layer authentication.
//
// NormalizeConfig is a pure function over (raw, catalog).
func NormalizeConfig(raw map[string]any, catalog []string) (*Settings, error) {
	set := &Settings{
		Protocol:   ProtocolTCP,
		Sourcetype: SourcetypeRecords,
	}

	proto, ok, err := singleChoice(raw, "protocol")
	if err != nil {
		return nil, err
	}
	if ok {
		set.Protocol, err = parseProtocol(proto)
		if err != nil {
			return nil, err
		}
	}

	st, ok, err := singleChoice(raw, "sourcetype")
	if err != nil {
		return nil, err
	}
	if ok {
		set.Sourcetype, err = parseSourcetype(st)
		if err != nil {
			return nil, err
		}
	}

	if tok, ok := raw["token"]; ok {
		s, isString := tok.(string)
		if !isString && tok != nil {
			return nil, configf("token must be a string, got %T", tok)
		}
		set.Token = s
	}
	if set.Protocol.RequiresToken() && set.Token == "" {
		return nil, configf("token required for HTTP(S) protocol")
	}

	set.DisableSSL, err = boolValue(raw, "disable_ssl")
	if err != nil {
		return nil, err
	}

	set.Plugins, err = pluginSelection(raw, catalog)
	if err != nil {
		return nil, err
	}

	return set, nil
}

func parseProtocol(v string) (Protocol, error) {
	p := Protocol(v)
	if !slices.Contains(Protocols, p) {
		return "", configf("unsupported protocol %q", v)
	}
	return p, nil
}

func parseSourcetype(v string) (Sourcetype, error) {
	s := Sourcetype(v)
	if !slices.Contains(Sourcetypes, s) {
		return "", configf("unsupported sourcetype %q", v)
	}
	return s, nil
}

// singleChoice extracts a single-choice field that may be a scalar or a
// one-element list. The returned value is case-folded. ok is false when the
// field is absent or empty.
func singleChoice(raw map[string]any, field string) (value string, ok bool, err error) {
	v, present := raw[field]
	if !present || v == nil {
		return "", false, nil
	}
	values, err := stringList(field, v)
	if err != nil {
		return "", false, err
	}
	switch len(values) {
	case 0:
		return "", false, nil
	case 1:
		if values[0] == "" {
			return "", false, nil
		}
		return strings.ToLower(values[0]), true, nil
	default:
		return "", false, configf("select only one %s, got %v", field, values)
	}
}

func boolValue(raw map[string]any, field string) (bool, error) {
	v, present := raw[field]
	if !present || v == nil {
		return false, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		if b == "" {
			return false, nil
		}
		parsed, err := strconv.ParseBool(strings.ToLower(b))
		if err != nil {
			return false, configf("%s must be a boolean, got %q", field, b)
		}
		return parsed, nil
	default:
		return false, configf("%s must be a boolean, got %T", field, v)
	}
}

// pluginSelection validates the plugins field against the discovered
// catalog. An absent or empty selection means the full catalog.
func pluginSelection(raw map[string]any, catalog []string) ([]string, error) {
	v, present := raw["plugins"]
	if !present || v == nil {
		return slices.Clone(catalog), nil
	}
	selected, err := stringList("plugins", v)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return slices.Clone(catalog), nil
	}
	for _, name := range selected {
		if !slices.Contains(catalog, name) {
			return nil, configf("unknown plugin %q", name)
		}
	}
	return selected, nil
}

// stringList coerces a scalar string, []string or []any into a string slice.
func stringList(field string, v any) ([]string, error) {
	switch val := v.(type) {
	case string:
		return []string{val}, nil
	case []string:
		return slices.Clone(val), nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, configf("%s values must be strings, got %T", field, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, configf("%s must be a string or list of strings, got %T", field, v)
	}
}
