package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/PatchLens/go-dump-lens/lens"
)

// CustomFlag defines a custom CLI option.
type CustomFlag struct {
	Name         string
	DefaultValue any
	Usage        string
	Type         string // "string", "int", "bool"
}

// ParseFlags builds Config from os.Args using the standard and custom flags.
func ParseFlags(customFlags []CustomFlag) (*lens.Config, error) {
	return ParseArgs(os.Args[1:], customFlags)
}

// ParseArgs builds and validates Config from args.
func ParseArgs(args []string, customFlags []CustomFlag) (*lens.Config, error) {
	config := &lens.Config{
		Formatter:   lens.DefaultFormatterConfig(),
		CustomFlags: make(map[string]string),
	}
	fmtCfg := &config.Formatter

	fs := pflag.NewFlagSet("dumplens", pflag.ContinueOnError)
	// collector
	fs.StringVar(&config.Host, "host", lens.DefaultHost, "Address to bind the collector to")
	fs.IntVarP(&config.Port, "port", "p", lens.DefaultPort, "Port to bind the collector to")
	fs.StringVar(&config.StorageDir, "storage", "", "Directory to persist received packets, in memory only when empty")
	fs.StringVar(&config.Session, "session", "", "Session name packets are stored under, defaults to the start time")
	fs.IntVar(&config.CacheMB, "cachemb", 64, "Cache memory budget in MB")
	fs.StringVar(&config.LogFile, "log", "", "File to append the collector output to")
	fs.StringVar(&config.StatsFile, "stats", "", "File to write the session stats JSON to")
	fs.StringVar(&config.ReportFile, "report", "", "File to write the session chart to (.png, .svg, .jpg)")
	fs.BoolVar(&config.Color, "color", true, "Keep the colors of received dumps")
	fs.IntVar(&config.MaxLines, "maxlines", 0, "Maximum lines printed per packet, 0 prints everything")
	fs.BoolVar(&config.Replay, "replay", false, "Print the stored session instead of listening")
	// formatter
	fs.IntVarP(&config.Width, "width", "w", 0, "Table width, 0 detects the terminal width")
	fs.IntVar(&fmtCfg.MaxDepth, "depth", fmtCfg.MaxDepth, "Maximum nesting depth rendered")
	fs.IntVar(&fmtCfg.MaxStringLength, "strlen", fmtCfg.MaxStringLength, "Maximum string length rendered")
	fs.IntVar(&fmtCfg.TraceLength, "trace", fmtCfg.TraceLength, "Number of trace frames shown after a dump")
	fs.BoolVar(&fmtCfg.Heuristics, "heuristics", fmtCfg.Heuristics, "Detect UUIDs, JSON and timestamps in strings")
	fs.StringSliceVar(&fmtCfg.HiddenFields, "hide", fmtCfg.HiddenFields, "Field names whose values are masked")
	fs.Var(newEnumFlag(&fmtCfg.Escaping, "escape", lens.ParseEscapeDialect), "escape",
		"String escaping: plain, go, js, json, mysql, postgres, named, symbolic, cp437")
	fs.Var(newEnumFlag(&fmtCfg.JSONMode, "json", lens.ParseJSONMode), "json", "JSON strings: off, inline, pretty")
	fs.Var(newEnumFlag(&fmtCfg.FieldOrder, "order", lens.ParseFieldOrder), "order",
		"Field order: declaration, alphabetic, visibility")
	fs.Var(&locationFlag{value: &fmtCfg.Timezone}, "tz", "Time zone for rendered times")

	// Define custom flags
	customPtrs := make(map[string]any)
	for _, cf := range customFlags {
		switch cf.Type {
		case "string":
			customPtrs[cf.Name] = fs.String(cf.Name, cf.DefaultValue.(string), cf.Usage)
		case "int":
			customPtrs[cf.Name] = fs.Int(cf.Name, cf.DefaultValue.(int), cf.Usage)
		case "bool":
			customPtrs[cf.Name] = fs.Bool(cf.Name, cf.DefaultValue.(bool), cf.Usage)
		default:
			return nil, fmt.Errorf("unsupported flag type for %s: %s", cf.Name, cf.Type)
		}
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fmtCfg.Width = config.Width

	// Populate custom flags - convert all to strings for ease of use
	for name, ptr := range customPtrs {
		switch v := ptr.(type) {
		case *string:
			config.CustomFlags[name] = *v
		case *int:
			config.CustomFlags[name] = strconv.Itoa(*v)
		case *bool:
			config.CustomFlags[name] = strconv.FormatBool(*v)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// enumFlag adapts a lens Parse function to pflag.Value.
type enumFlag[T any] struct {
	value    *T
	typeName string
	parse    func(string) (T, error)
	text     string
}

func newEnumFlag[T any](target *T, typeName string, parse func(string) (T, error)) *enumFlag[T] {
	return &enumFlag[T]{value: target, typeName: typeName, parse: parse}
}

// Set implements pflag.Value.
func (f *enumFlag[T]) Set(s string) error {
	v, err := f.parse(s)
	if err != nil {
		return err
	}
	*f.value = v
	f.text = strings.ToLower(s)
	return nil
}

// String implements pflag.Value.
func (f *enumFlag[T]) String() string {
	return f.text
}

// Type implements pflag.Value.
func (f *enumFlag[T]) Type() string {
	return f.typeName
}

var _ pflag.Value = &enumFlag[lens.JSONMode]{}

type locationFlag struct {
	value **time.Location
}

// Set implements pflag.Value.
func (l *locationFlag) Set(name string) error {
	if name == "" {
		return nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return err
	}
	*l.value = loc
	return nil
}

// String implements pflag.Value.
func (l *locationFlag) String() string {
	if l == nil || l.value == nil || *l.value == nil {
		return ""
	}
	return (*l.value).String()
}

// Type implements pflag.Value.
func (l *locationFlag) Type() string {
	return "timezone"
}

var _ pflag.Value = &locationFlag{}
