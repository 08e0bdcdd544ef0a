package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"voxpro/internal/assistant"
	"voxpro/internal/models"
)

const msgNoHistory = "No interactions recorded yet."

func printInteraction(w io.Writer, it models.Interaction) {
	mark := "✓"
	if !it.Success {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s [%s] %s\n", mark, it.Command, it.Response)
}

func printRecords(w io.Writer, records []models.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, msgNoHistory)
		return
	}
	for _, r := range records {
		input := r.Input
		if input == "" {
			input = "(nothing heard)"
		}
		fmt.Fprintf(w, "%s  %-9s %-5s %s => %s\n",
			r.Timestamp.Local().Format("2006-01-02 15:04:05"), r.Command, r.Source, input, r.Response)
	}
}

func printStatus(w io.Writer, st assistant.Status) {
	names := make([]string, 0, len(st.Services))
	for name := range st.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	var on, off []string
	for _, name := range names {
		if st.Services[name] {
			on = append(on, name)
		} else {
			off = append(off, name)
		}
	}

	fmt.Fprintf(w, "services:   %s\n", strings.Join(on, ", "))
	if len(off) > 0 {
		fmt.Fprintf(w, "disabled:   %s\n", strings.Join(off, ", "))
	}
	fmt.Fprintf(w, "history:    %s\n", onOff(st.History))
	fmt.Fprintf(w, "speech:     %s\n", onOff(st.Speech))
	fmt.Fprintf(w, "microphone: %s\n", onOff(st.Microphone))
	fmt.Fprintf(w, "fallback:   %s\n", onOff(st.Fallback))
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
