package engine

import (
	"strconv"
	"strings"
)

// progressTemplate makes yt-dlp emit one machine-parseable line per
// progress tick instead of its human-oriented bar. Fields that yt-dlp
// does not know yet are printed as the literal string "NA".
const progressTemplate = "download:volo|%(progress.downloaded_bytes)s|%(progress.total_bytes)s|%(progress.total_bytes_estimate)s|%(progress.speed)s|%(progress.eta)s"

const progressLinePrefix = "volo|"

// ParseProgressLine decodes one stdout line from a transfer started
// with progressTemplate. Lines that are not progress reports, or whose
// total size is still unknown (percent would be meaningless), yield
// ok=false and are skipped by the caller.
func ParseProgressLine(line string) (Progress, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, progressLinePrefix) {
		return Progress{}, false
	}

	fields := strings.Split(strings.TrimPrefix(line, progressLinePrefix), "|")
	if len(fields) != 5 {
		return Progress{}, false
	}

	downloaded, ok := parseField(fields[0])
	if !ok {
		return Progress{}, false
	}

	total, ok := parseField(fields[1])
	if !ok || total <= 0 {
		// Fall back to the engine's estimate when the exact size is
		// not known (segmented/chunked transfers).
		if total, ok = parseField(fields[2]); !ok || total <= 0 {
			return Progress{}, false
		}
	}

	percent := downloaded / total * 100
	if percent > 100 {
		percent = 100
	}
	if percent < 0 {
		percent = 0
	}

	speed, _ := parseField(fields[3])
	eta, _ := parseField(fields[4])

	return Progress{
		Percent:          percent,
		SpeedBytesPerSec: speed,
		EtaSeconds:       int(eta),
	}, true
}

func parseField(field string) (float64, bool) {
	field = strings.TrimSpace(field)
	if field == "" || field == "NA" || field == "None" {
		return 0, false
	}

	value, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, false
	}

	return value, true
}
