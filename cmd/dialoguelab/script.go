package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/MrWong99/dialoguelab/pkg/alignment"
	"github.com/MrWong99/dialoguelab/pkg/dialogue"
	"github.com/MrWong99/dialoguelab/pkg/highlight"
)

// readInput reads path, or stdin when path is "-" or empty.
func readInput(cmd *cobra.Command, path string) (string, error) {
	if path == "" || path == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type parseOutput struct {
	Entries    []dialogue.Entry `json:"entries"`
	Transcript string           `json:"transcript"`
}

func newParseCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "parse [file|-]",
		Short: "Split a dialogue script into speaker entries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			script, err := readInput(cmd, path)
			if err != nil {
				return err
			}
			entries := dialogue.Parse(script)
			if entries == nil {
				entries = []dialogue.Entry{}
			}

			if !wantTable(cmd.OutOrStdout(), asJSON) {
				return writeJSON(cmd, parseOutput{Entries: entries, Transcript: dialogue.BuildTranscript(entries)})
			}
			rows := make([][]string, len(entries))
			for i, e := range entries {
				rows[i] = []string{
					strconv.Itoa(e.LineIndex + 1),
					e.SpeakerLabel,
					e.NormalizedText,
					fmt.Sprintf("%d-%d", e.TranscriptStart, e.TranscriptEnd),
				}
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(),
				renderTable([]string{"Line", "Speaker", "Text", "Transcript"}, rows, []columnAlignment{alignRight}))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON even on a terminal")
	return cmd
}

type alignedWord struct {
	alignment.WordTiming
	Highlight *highlight.Range `json:"highlight,omitempty"`
	Text      string           `json:"text,omitempty"`
}

type alignOutput struct {
	Transcript string        `json:"transcript"`
	InSync     bool          `json:"inSync"`
	Words      []alignedWord `json:"words"`
}

func newAlignCommand() *cobra.Command {
	var (
		scriptPath    string
		alignmentPath string
		segmenter     string
		asJSON        bool
	)
	cmd := &cobra.Command{
		Use:   "align --script FILE --alignment FILE",
		Short: "Map character timings onto a script and print word highlights",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if scriptPath == "-" && alignmentPath == "-" {
				return errors.New("only one of --script and --alignment can read stdin")
			}
			seg, err := alignment.ParseSegmenter(segmenter)
			if err != nil {
				return err
			}
			script, err := readInput(cmd, scriptPath)
			if err != nil {
				return err
			}
			raw, err := readInput(cmd, alignmentPath)
			if err != nil {
				return err
			}
			var p alignment.Payload
			if err := json.Unmarshal([]byte(raw), &p); err != nil {
				return fmt.Errorf("decode alignment: %w", err)
			}

			a := highlight.Align(script, &p, alignment.WithSegmenter(seg))
			out := alignOutput{Transcript: a.Transcript, InSync: a.InSync, Words: make([]alignedWord, len(a.Timings))}
			for i, t := range a.Timings {
				out.Words[i].WordTiming = t
			}
			for _, r := range a.Ranges {
				if r.WordIndex >= 0 && r.WordIndex < len(out.Words) {
					out.Words[r.WordIndex].Highlight = &r
					out.Words[r.WordIndex].Text = highlight.Slice(script, r)
				}
			}

			if !wantTable(cmd.OutOrStdout(), asJSON) {
				return writeJSON(cmd, out)
			}
			rows := make([][]string, len(out.Words))
			for i, w := range out.Words {
				span := ""
				if w.Highlight != nil {
					span = fmt.Sprintf("%d-%d", w.Highlight.Start, w.Highlight.End)
				}
				rows[i] = []string{
					w.Word,
					strconv.FormatFloat(w.Start, 'f', 3, 64),
					strconv.FormatFloat(w.End, 'f', 3, 64),
					span,
					w.Text,
				}
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, renderTable([]string{"Word", "Start", "End", "Script", "Highlighted"}, rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight}))
			if !a.InSync {
				fmt.Fprintln(w, "script does not match the spoken transcript; nothing highlighted")
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&scriptPath, "script", "", "dialogue script file (- for stdin)")
	f.StringVar(&alignmentPath, "alignment", "", "alignment JSON file (- for stdin)")
	f.StringVar(&segmenter, "segmenter", "", "word segmenter: manual (default) or uax29")
	f.BoolVar(&asJSON, "json", false, "print JSON even on a terminal")
	_ = cmd.MarkFlagRequired("script")
	_ = cmd.MarkFlagRequired("alignment")
	return cmd
}
