package autostart

import (
	"fmt"
	"strings"

	"howett.net/plist"
)

type launchAgent struct {
	Label            string   `plist:"Label"`
	ProgramArguments []string `plist:"ProgramArguments"`
	RunAtLoad        bool     `plist:"RunAtLoad"`
	KeepAlive        bool     `plist:"KeepAlive"`
}

// launchAgentPlist renders the LaunchAgent property list for args.
func launchAgentPlist(args []string) ([]byte, error) {
	agent := launchAgent{
		Label:            Label,
		ProgramArguments: args,
		RunAtLoad:        true,
	}
	data, err := plist.MarshalIndent(agent, plist.XMLFormat, "\t")
	if err != nil {
		return nil, fmt.Errorf("encode launch agent: %w", err)
	}
	return data, nil
}

// desktopEntry renders an XDG autostart entry for args.
func desktopEntry(args []string) []byte {
	var b strings.Builder
	b.WriteString("[Desktop Entry]\n")
	b.WriteString("Type=Application\n")
	b.WriteString("Name=" + AppName + "\n")
	b.WriteString("Comment=Battery and app driven smart plug automation\n")
	b.WriteString("Exec=" + quoteArgs(args) + "\n")
	b.WriteString("Terminal=false\n")
	b.WriteString("X-GNOME-Autostart-enabled=true\n")
	return []byte(b.String())
}
