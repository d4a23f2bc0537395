// Package mcpserver exposes the dialogue parser and the highlight aligner as
// MCP tools so that assistants can inspect scripts and timing data without
// going through the HTTP API.
//
// Two tools are registered:
//   - "parse_dialogue" splits a script into entries and returns the spoken
//     transcript.
//   - "align_dialogue" maps per-character timing data onto a script and
//     returns word timings with the script ranges to highlight.
//
// Both tools are pure; they never contact a provider.
package mcpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/dialoguelab/pkg/alignment"
	"github.com/MrWong99/dialoguelab/pkg/dialogue"
	"github.com/MrWong99/dialoguelab/pkg/highlight"
)

const (
	ToolParse = "parse_dialogue"
	ToolAlign = "align_dialogue"
)

var errScriptRequired = errors.New("script is required")

// ParseArgs is the input of parse_dialogue.
type ParseArgs struct {
	Script string `json:"script" jsonschema:"the dialogue script, one line per turn, optionally prefixed with a speaker label and a colon"`
}

// ParseResult is the output of parse_dialogue.
type ParseResult struct {
	Entries    []dialogue.Entry `json:"entries"`
	Transcript string           `json:"transcript"`
}

// AlignArgs is the input of align_dialogue. The three timing arrays are
// parallel, one element per spoken character.
type AlignArgs struct {
	Script     string    `json:"script" jsonschema:"the dialogue script that was synthesized"`
	Characters []string  `json:"characters" jsonschema:"spoken characters in order"`
	StartTimes []float64 `json:"start_times" jsonschema:"start time of each character in seconds"`
	EndTimes   []float64 `json:"end_times" jsonschema:"end time of each character in seconds"`
	Segmenter  string    `json:"segmenter,omitempty" jsonschema:"word segmenter: manual (default) or uax29"`
}

// AlignResult is the output of align_dialogue.
type AlignResult struct {
	Transcript  string                 `json:"transcript"`
	Timings     []alignment.WordTiming `json:"timings"`
	Ranges      []highlight.Range      `json:"ranges"`
	Highlighted []string               `json:"highlighted"`
	InSync      bool                   `json:"in_sync"`
}

// Option configures [New].
type Option func(*options)

type options struct {
	version   string
	segmenter alignment.Segmenter
}

// WithVersion sets the implementation version reported to clients.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithSegmenter sets the word segmenter used when a call does not name one.
func WithSegmenter(s alignment.Segmenter) Option {
	return func(o *options) { o.segmenter = s }
}

// New creates an MCP server with both tools registered.
func New(opts ...Option) *mcp.Server {
	o := options{version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}

	s := mcp.NewServer(&mcp.Implementation{Name: "dialoguelab", Version: o.version}, nil)
	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolParse,
		Description: "Split a dialogue script into speaker entries and return the transcript a speech provider would speak.",
	}, parse)
	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolAlign,
		Description: "Map per-character speech timings onto a dialogue script and return word timings and the script ranges to highlight.",
	}, align(o.segmenter))
	return s
}

// Handler serves s over the streamable HTTP transport.
func Handler(s *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s }, nil)
}

func parse(_ context.Context, _ *mcp.CallToolRequest, args ParseArgs) (*mcp.CallToolResult, ParseResult, error) {
	if strings.TrimSpace(args.Script) == "" {
		return nil, ParseResult{}, errScriptRequired
	}
	entries := dialogue.Parse(args.Script)
	if entries == nil {
		entries = []dialogue.Entry{}
	}
	return nil, ParseResult{Entries: entries, Transcript: dialogue.BuildTranscript(entries)}, nil
}

func align(defaultSeg alignment.Segmenter) mcp.ToolHandlerFor[AlignArgs, AlignResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, args AlignArgs) (*mcp.CallToolResult, AlignResult, error) {
		if strings.TrimSpace(args.Script) == "" {
			return nil, AlignResult{}, errScriptRequired
		}
		seg := defaultSeg
		if args.Segmenter != "" {
			var err error
			if seg, err = alignment.ParseSegmenter(args.Segmenter); err != nil {
				return nil, AlignResult{}, err
			}
		}

		a := highlight.Align(args.Script, &alignment.Payload{
			Characters: args.Characters,
			StartTimes: args.StartTimes,
			EndTimes:   args.EndTimes,
		}, alignment.WithSegmenter(seg))
		slog.Debug("mcpserver: aligned dialogue", "timings", len(a.Timings), "ranges", len(a.Ranges), "in_sync", a.InSync)

		res := AlignResult{
			Transcript:  a.Transcript,
			Timings:     a.Timings,
			Ranges:      a.Ranges,
			Highlighted: make([]string, len(a.Ranges)),
			InSync:      a.InSync,
		}
		for i, r := range a.Ranges {
			res.Highlighted[i] = highlight.Slice(args.Script, r)
		}
		if res.Timings == nil {
			res.Timings = []alignment.WordTiming{}
		}
		if res.Ranges == nil {
			res.Ranges = []highlight.Range{}
		}
		return nil, res, nil
	}
}
