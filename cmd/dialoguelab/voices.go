package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrWong99/dialoguelab/internal/voices"
)

type voiceRow struct {
	Language string       `json:"language"`
	Kind     string       `json:"kind"`
	Slot     string       `json:"slot,omitempty"`
	Voice    voices.Voice `json:"voice"`
}

func newVoicesCommand() *cobra.Command {
	var (
		language      string
		pronunciation bool
		asJSON        bool
	)
	cmd := &cobra.Command{
		Use:   "voices",
		Short: "Print the voice catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := voiceRows(language, pronunciation)
			if err != nil {
				return err
			}
			if !wantTable(cmd.OutOrStdout(), asJSON) {
				return writeJSON(cmd, rows)
			}
			table := make([][]string, len(rows))
			for i, r := range rows {
				table[i] = []string{r.Language, r.Kind, r.Slot, r.Voice.Label, r.Voice.ID}
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(),
				renderTable([]string{"Language", "Kind", "Slot", "Voice", "ID"}, table, nil))
			return err
		},
	}
	f := cmd.Flags()
	f.StringVarP(&language, "language", "l", "", "only this language")
	f.BoolVar(&pronunciation, "pronunciation", false, "include the single-voice pronunciation catalog")
	f.BoolVar(&asJSON, "json", false, "print JSON even on a terminal")
	return cmd
}

// voiceRows lists the dialogue pairs, and optionally the pronunciation
// voices, for language or for every catalog language.
func voiceRows(language string, pronunciation bool) ([]voiceRow, error) {
	lang := voices.NormalizeLanguage(language)
	var rows []voiceRow

	for _, l := range voices.DialogueLanguages() {
		if lang != "" && l != lang {
			continue
		}
		pair, _ := voices.DialoguePair(l)
		rows = append(rows,
			voiceRow{Language: l, Kind: "dialogue", Slot: voices.SlotA.String(), Voice: pair.A},
			voiceRow{Language: l, Kind: "dialogue", Slot: voices.SlotB.String(), Voice: pair.B},
		)
	}
	if pronunciation {
		for _, l := range voices.PronunciationLanguages() {
			if lang != "" && l != lang {
				continue
			}
			v, _ := voices.PronunciationVoice(l)
			rows = append(rows, voiceRow{Language: l, Kind: "pronunciation", Voice: v})
		}
	}

	if len(rows) == 0 && lang != "" {
		return nil, fmt.Errorf("no voices for language %q", language)
	}
	return rows, nil
}
