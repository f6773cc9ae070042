package progress

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// NoPercent marks an update that carries only a message.
const NoPercent = -1

// Update is what one output line contributes to a job.
type Update struct {
	Percent int
	Message string
}

// HasPercent reports whether the update moves the progress bar.
func (u Update) HasPercent() bool {
	return u.Percent >= 0
}

// Parser turns a collaborator output line into a job update. ok is false for
// lines that should be ignored entirely (blank lines).
type Parser interface {
	Parse(line string) (update Update, ok bool)
}

// DefaultPercentPattern matches the marker the collaborators print.
const DefaultPercentPattern = `Progress:\s*(\d{1,3})\s*%`

// PercentParser recognizes a "Progress: N%" marker anywhere in a line.
type PercentParser struct {
	pattern *regexp.Regexp
}

// NewPercentParser compiles pattern, which must contain one capture group for
// the integer percentage. An empty pattern selects DefaultPercentPattern.
func NewPercentParser(pattern string) (*PercentParser, error) {
	if strings.TrimSpace(pattern) == "" {
		pattern = DefaultPercentPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile progress pattern: %w", err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("progress pattern %q needs a capture group", pattern)
	}
	return &PercentParser{pattern: re}, nil
}

// Parse implements Parser.
func (p *PercentParser) Parse(line string) (Update, bool) {
	text := strings.TrimSpace(line)
	if text == "" {
		return Update{}, false
	}
	update := Update{Percent: NoPercent, Message: text}
	if m := p.pattern.FindStringSubmatch(text); len(m) > 1 {
		if value, err := strconv.Atoi(m[1]); err == nil {
			update.Percent = value
		}
	}
	return update, true
}

// JSONParser accepts line-delimited {"percent": N, "message": "..."} objects
// and treats any other line as message-only output.
type JSONParser struct{}

type jsonLine struct {
	Percent *float64 `json:"percent"`
	Message string   `json:"message"`
	Stage   string   `json:"stage"`
}

// Parse implements Parser.
func (JSONParser) Parse(line string) (Update, bool) {
	text := strings.TrimSpace(line)
	if text == "" {
		return Update{}, false
	}
	if !strings.HasPrefix(text, "{") {
		return Update{Percent: NoPercent, Message: text}, true
	}
	var payload jsonLine
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return Update{Percent: NoPercent, Message: text}, true
	}
	update := Update{Percent: NoPercent, Message: strings.TrimSpace(payload.Message)}
	if payload.Percent != nil {
		update.Percent = int(*payload.Percent)
	}
	if update.Message == "" {
		update.Message = strings.TrimSpace(payload.Stage)
	}
	if update.Message == "" && update.HasPercent() {
		update.Message = fmt.Sprintf("Progress: %d%%", update.Percent)
	}
	if update.Message == "" && !update.HasPercent() {
		return Update{}, false
	}
	return update, true
}

// ForFormat returns the parser configured by converter.progress_format.
func ForFormat(format string) (Parser, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "percent":
		return NewPercentParser("")
	case "json":
		return JSONParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported progress format %q", format)
	}
}
