package task

import (
	"github.com/openrelik/openrelik-worker-dissect/internal/artifact"
	"github.com/openrelik/openrelik-worker-dissect/internal/dissect"
)

// Task names used to register and route tasks to the worker queue.
const (
	RdumpJSONLName  = "openrelik-worker-dissect.rdump.jsonl"
	RdumpSplunkName = "openrelik-worker-dissect.rdump.splunk"
	TargetQueryName = "openrelik-worker-dissect.target-query"
)

// NewRdumpJSONL creates the "rdump to JSONL" task: rdump renders input
// records as line-delimited JSON on stdout.
func NewRdumpJSONL(d Deps) *Task {
	return newTask(jsonlProfile{}, d)
}

// NewRdumpSplunk creates the "rdump to Splunk" task: rdump forwards input
// records to the configured Splunk sink.
func NewRdumpSplunk(d Deps, sink dissect.SplunkSink) *Task {
	return newTask(splunkProfile{sink: sink}, d)
}

// NewTargetQuery creates the "target-query" task: selected plugins run
// against each input target and dump records into an output file.
func NewTargetQuery(d Deps) *Task {
	return newTask(queryProfile{}, d)
}

type jsonlProfile struct{}

func (jsonlProfile) name() string { return RdumpJSONLName }
func (jsonlProfile) tool() string { return dissect.RdumpTool }
func (jsonlProfile) usesPlugins() bool { return false }
func (jsonlProfile) expectsOutput() bool { return false }

func (jsonlProfile) metadata([]string) Metadata {
	return Metadata{
		Name:        RdumpJSONLName,
		DisplayName: "Dissect: rdump to JSONL",
		Description: "Create a JSONL file from Dissect",
		TaskConfig:  []FormField{},
	}
}

func (jsonlProfile) prepare(*dissect.Settings) error { return nil }

func (jsonlProfile) build(_ *dissect.Settings, in InputFile, _ string) (dissect.CommandSpec, *artifact.OutputFile, error) {
	return dissect.JSONLCommand(in.Path), nil, nil
}

type splunkProfile struct {
	sink dissect.SplunkSink
}

func (splunkProfile) name() string { return RdumpSplunkName }
func (splunkProfile) tool() string { return dissect.RdumpTool }
func (splunkProfile) usesPlugins() bool { return false }
func (splunkProfile) expectsOutput() bool { return false }

func (splunkProfile) metadata([]string) Metadata {
	protocols := make([]string, 0, len(dissect.Protocols))
	for _, p := range dissect.Protocols {
		protocols = append(protocols, string(p))
	}
	sourcetypes := make([]string, 0, len(dissect.Sourcetypes))
	for _, s := range dissect.Sourcetypes {
		sourcetypes = append(sourcetypes, string(s))
	}
	return Metadata{
		Name:        RdumpSplunkName,
		DisplayName: "Dissect: rdump to Splunk",
		Description: "Send Dissect output to Splunk",
		TaskConfig: []FormField{
			{
				Name:        "protocol",
				Label:       "Protocol to use for forwarding data",
				Description: "Can be tcp, http or https, defaults to tcp if omitted.",
				Type:        FieldTypeAutocomplete,
				Items:       protocols,
			},
			{
				Name:        "sourcetype",
				Label:       "Splunk sourcetype",
				Description: "Sourcetype tag for forwarded records, defaults to records.",
				Type:        FieldTypeAutocomplete,
				Items:       sourcetypes,
			},
			{
				Name:        "token",
				Label:       "Splunk HEC token",
				Description: "Authentication token for sending data over HTTP(S)",
				Type:        FieldTypeText,
			},
			{
				Name:        "disable_ssl",
				Label:       "Disable SSL verification",
				Description: "Whether to verify the server certificate when sending data over HTTPS",
				Type:        FieldTypeCheckbox,
			},
		},
	}
}

// prepare checks the sink coordinates once per task invocation; no
// process is spawned when they are missing.
func (p splunkProfile) prepare(*dissect.Settings) error {
	return p.sink.Validate()
}

func (p splunkProfile) build(set *dissect.Settings, in InputFile, _ string) (dissect.CommandSpec, *artifact.OutputFile, error) {
	return dissect.SplunkCommand(in.Path, set, p.sink), nil, nil
}

type queryProfile struct{}

func (queryProfile) name() string { return TargetQueryName }
func (queryProfile) tool() string { return dissect.TargetQueryTool }
func (queryProfile) usesPlugins() bool { return true }
func (queryProfile) expectsOutput() bool { return true }

func (queryProfile) metadata(catalog []string) Metadata {
	return Metadata{
		Name:        TargetQueryName,
		DisplayName: "Dissect: target-query",
		Description: "Timelining using Dissect",
		TaskConfig: []FormField{
			{
				Name:        "plugins",
				Label:       "Select plugins to use",
				Description: "Select one or more Dissect parsers to use. If none are selected, all will be used.",
				Type:        FieldTypeAutocomplete,
				Items:       catalog,
			},
		},
	}
}

func (queryProfile) prepare(*dissect.Settings) error { return nil }

func (queryProfile) build(set *dissect.Settings, in InputFile, outputDir string) (dissect.CommandSpec, *artifact.OutputFile, error) {
	out, err := artifact.NewOutputFile(outputDir, "", "dump", "dissect:target:dump_file")
	if err != nil {
		return dissect.CommandSpec{}, nil, err
	}
	return dissect.QueryCommand(in.Path, set, out.Path), out, nil
}
