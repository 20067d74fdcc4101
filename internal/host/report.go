package host

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/hostpulse/internal/errors"
)

// OutputPlaceholder in a report command is replaced by a temporary file
// path. The report is then read from that file instead of stdout, for
// tools such as "powercfg /batteryreport /output {output}".
const OutputPlaceholder = "{output}"

const labelWindow = 800

var (
	designLabel  = regexp.MustCompile(`(?i)design[ _-]?capacity|energy-full-design`)
	fullLabel    = regexp.MustCompile(`(?i)full[ _-]?charge[ _-]?capacity|last full capacity|energy-full:`)
	capacityRe   = regexp.MustCompile(`(?i)([0-9][0-9,.]*)\s*(mwh|wh)\b`)
	cycleRe      = regexp.MustCompile(`(?i)(?:cycle[ _-]?count|charge-cycles)[^\d\n]{0,200}?([0-9][0-9,]{0,6})`)
	voltageRe    = regexp.MustCompile(`(?i)voltage[^\d\n]{0,200}?([0-9][0-9.,]*)\s*(mv|v)\b`)
	bareNumberRe = regexp.MustCompile(`([0-9][0-9,]{3,})`)
)

// ReportCommand runs an external tool and parses its textual output. Each
// run is bounded by timeout, so a hung tool cannot stall the caller.
type ReportCommand struct {
	args    []string
	timeout time.Duration
	tmpDir  string
}

func NewReportCommand(command string, timeout time.Duration, tmpDir string) *ReportCommand {
	return &ReportCommand{
		args:    strings.Fields(command),
		timeout: timeout,
		tmpDir:  tmpDir,
	}
}

func (c *ReportCommand) Report(ctx context.Context) (CapacityReport, error) {
	errFactory := errors.New()

	if len(c.args) == 0 {
		return CapacityReport{}, errFactory.WithData(ErrReportFailed, "no command configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := make([]string, len(c.args))
	copy(args, c.args)

	var outFile string
	for i, a := range args {
		if strings.Contains(a, OutputPlaceholder) {
			if outFile == "" {
				f, err := os.CreateTemp(c.tmpDir, "battery_report_*.html")
				if err != nil {
					return CapacityReport{}, errFactory.Wrap(ErrReportFailed, err)
				}
				outFile = f.Name()
				f.Close()
				defer os.Remove(outFile)
			}
			args[i] = strings.ReplaceAll(a, OutputPlaceholder, outFile)
		}
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	stdout, err := cmd.Output()
	if ctx.Err() == context.DeadlineExceeded {
		return CapacityReport{}, errFactory.WithData(ErrReportTimeout, c.timeout.String())
	}
	if err != nil {
		return CapacityReport{}, errFactory.Wrap(ErrReportFailed, err)
	}

	text := string(stdout)
	if outFile != "" {
		b, err := os.ReadFile(filepath.Clean(outFile))
		if err != nil {
			return CapacityReport{}, errFactory.Wrap(ErrReportFailed, err)
		}
		text = string(b)
	}

	r := ParseReport(text)
	if r.DesignMWh == nil && r.FullMWh == nil {
		return r, errFactory.New(ErrReportEmpty)
	}

	return r, nil
}

// ParseReport extracts capacity figures from free-form report text.
// Recognised layouts include the Windows battery report and upower output.
func ParseReport(text string) CapacityReport {
	var r CapacityReport

	r.DesignMWh = findCapacity(text, designLabel)
	r.FullMWh = findCapacity(text, fullLabel)

	if m := cycleRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil {
			r.CycleCount = &v
		}
	}

	if m := voltageRe.FindStringSubmatch(text); m != nil {
		if v, ok := parseScaled(m[1], strings.EqualFold(m[2], "v")); ok {
			mv := int(v)
			r.VoltageMV = &mv
		}
	}

	return r
}

func findCapacity(text string, label *regexp.Regexp) *int64 {
	loc := label.FindStringIndex(text)
	if loc == nil {
		return nil
	}
	window := text[loc[1]:min(len(text), loc[1]+labelWindow)]

	if m := capacityRe.FindStringSubmatch(window); m != nil {
		if v, ok := parseScaled(m[1], strings.EqualFold(m[2], "wh")); ok && v > 0 {
			return &v
		}
	}

	if m := bareNumberRe.FindStringSubmatch(window); m != nil {
		if v, err := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64); err == nil && v > 0 {
			return &v
		}
	}

	return nil
}

// parseScaled parses a number in milli-units. When whole is set the number
// is in whole units (Wh, V) and may carry a decimal comma or point;
// otherwise separators are thousands separators.
func parseScaled(raw string, whole bool) (int64, bool) {
	if !whole {
		digits := strings.NewReplacer(",", "", ".", "").Replace(raw)
		v, err := strconv.ParseInt(digits, 10, 64)
		return v, err == nil
	}

	f, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil {
		return 0, false
	}

	return int64(f*1000 + 0.5), true
}
