package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"irfan/internal/codes"
	"irfan/internal/config"

	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
)

var (
	okPrintf   = color.New(color.FgGreen).SprintfFunc()
	warnPrintf = color.New(color.FgYellow).SprintfFunc()
	namePrintf = color.New(color.FgCyan, color.Bold).SprintfFunc()
)

func checkCommand(c *cli.Context) error {
	logger, err := newLogger(c.String("log-level"))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	defer logger.Sync()

	cfg, err := config.NewLoader(c.String("config-file"), logger).Load()
	if err != nil {
		return err
	}

	printSummary(os.Stdout, cfg)
	return nil
}

// printSummary writes one block per device: its transport, which primitive
// codes are present and which macros are recorded
func printSummary(w io.Writer, cfg *config.Config) {
	for _, dc := range cfg.Devices {
		table := dc.Table()

		fmt.Fprintf(w, "%s (%s via %s -> %s)\n",
			namePrintf("%s", dc.Name), dc.DeviceType, dc.Transport, dc.IRBlasterEntity)

		want := codes.RequiredKeys
		if dc.DeviceType == config.DeviceTypeAM09 {
			want = codes.AllKeys
		}
		missing := table.Missing(want)
		fmt.Fprintf(w, "  codes:   %s\n", okPrintf("%s", joinKeys(lo.Without(want, missing...))))
		if len(missing) > 0 {
			fmt.Fprintf(w, "  missing: %s\n", warnPrintf("%s", joinKeys(missing)))
		}

		macros := lo.Map(table.Macros(), func(m codes.Macro, _ int) string { return m.Name })
		if len(macros) == 0 {
			fmt.Fprintf(w, "  macros:  %s\n", warnPrintf("none"))
		} else {
			fmt.Fprintf(w, "  macros:  %s\n", strings.Join(macros, ", "))
		}
	}
	fmt.Fprintln(w, okPrintf("%d device(s) OK", len(cfg.Devices)))
}

func joinKeys(keys []codes.Key) string {
	return strings.Join(lo.Map(keys, func(k codes.Key, _ int) string { return string(k) }), ", ")
}
