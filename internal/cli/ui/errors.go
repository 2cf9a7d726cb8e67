package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/conduit-lang/odata/internal/metadata"
	"github.com/conduit-lang/odata/internal/transport"
)

// ErrorLevel represents the severity of a message
type ErrorLevel int

const (
	ErrorLevelError ErrorLevel = iota
	ErrorLevelWarning
	ErrorLevelInfo
)

type levelStyle struct {
	symbol string
	color  color.Attribute
}

var levelStyles = map[ErrorLevel]levelStyle{
	ErrorLevelError:   {symbol: "❌", color: color.FgRed},
	ErrorLevelWarning: {symbol: "⚠️", color: color.FgYellow},
	ErrorLevelInfo:    {symbol: "ℹ️", color: color.FgCyan},
}

// ErrorOptions configures the message formatting
type ErrorOptions struct {
	Level        ErrorLevel
	Context      string
	Problem      string
	Detail       string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

// FormatError renders a message with optional suggestions and help commands
//
// Example output:
//
//	❌ UNKNOWN COLLECTION: Prodcts
//	   No entity set matches 'Prodcts'.
//
//	   Did you mean: Products?
//
//	   → List entity sets: odata schema
func FormatError(opts ErrorOptions) string {
	var b strings.Builder

	style := levelStyles[opts.Level]
	header := color.New(style.color, color.Bold)
	body := color.New(style.color)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)
	if opts.NoColor {
		for _, c := range []*color.Color{header, body, yellow, cyan} {
			c.DisableColor()
		}
	}

	if opts.Context != "" {
		header.Fprintf(&b, "%s %s: %s\n", style.symbol, strings.ToUpper(opts.Context), opts.Problem)
	} else {
		header.Fprintf(&b, "%s %s\n", style.symbol, opts.Problem)
	}

	if opts.Detail != "" {
		body.Fprintf(&b, "   %s\n", opts.Detail)
	}

	if len(opts.Suggestions) > 0 {
		b.WriteString("\n")
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}

	if len(opts.HelpCommands) > 0 {
		b.WriteString("\n")
		for _, cmd := range opts.HelpCommands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}

	return b.String()
}

// WriteError writes a formatted message to the writer
func WriteError(w io.Writer, opts ErrorOptions) {
	fmt.Fprint(w, FormatError(opts))
}

// FormatSuccess creates a success message
func FormatSuccess(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// WriteSuccess writes a success message to the writer
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, FormatSuccess(message, noColor))
}

// DescribeError picks the most helpful rendering for err
func DescribeError(err error, noColor bool) string {
	var rerr *metadata.ResolutionError
	if errors.As(err, &rerr) {
		return ResolutionError(rerr, noColor)
	}
	var serr *transport.StatusError
	if errors.As(err, &serr) {
		return ServiceError(serr, noColor)
	}
	return FormatError(ErrorOptions{Level: ErrorLevelError, Problem: err.Error(), NoColor: noColor})
}

// ResolutionError renders a name that did not resolve against the service metadata
func ResolutionError(err *metadata.ResolutionError, noColor bool) string {
	opts := ErrorOptions{
		Level:       ErrorLevelError,
		Context:     err.Kind.Error(),
		Problem:     err.Name,
		Suggestions: err.Suggestions,
		NoColor:     noColor,
	}
	if len(err.Candidates) > 0 {
		opts.Detail = fmt.Sprintf("'%s' matches more than one name: %s. Use the exact spelling.", err.Name, strings.Join(err.Candidates, ", "))
	} else {
		opts.Detail = fmt.Sprintf("Nothing in the service metadata matches '%s'.", err.Name)
	}

	switch {
	case errors.Is(err, metadata.ErrUnknownCollection), errors.Is(err, metadata.ErrAmbiguousCollection):
		opts.HelpCommands = []string{"List entity sets: odata schema"}
	case errors.Is(err, metadata.ErrUnknownFunction), errors.Is(err, metadata.ErrAmbiguousFunction):
		opts.HelpCommands = []string{"List function imports: odata schema functions"}
	default:
		opts.HelpCommands = []string{"Show an entity set: odata schema set <name>"}
	}
	return FormatError(opts)
}

// ServiceError renders a non-success response from the service
func ServiceError(err *transport.StatusError, noColor bool) string {
	opts := ErrorOptions{
		Level:   ErrorLevelError,
		Context: "SERVICE ERROR",
		Problem: fmt.Sprintf("%s %s returned %d", err.Method, err.URL, err.StatusCode),
		NoColor: noColor,
	}
	if body := strings.TrimSpace(string(err.Body)); body != "" {
		if len(body) > 500 {
			body = body[:500] + "…"
		}
		opts.Detail = body
	}
	if transport.IsPreconditionFailed(err) {
		opts.HelpCommands = []string{"Re-read the entry and retry with its current ETag: --etag"}
	}
	return FormatError(opts)
}

// ConfigError creates a standardized configuration error
func ConfigError(message string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:   ErrorLevelError,
		Context: "CONFIGURATION ERROR",
		Problem: message,
		HelpCommands: []string{
			"Create a config file: odata config init",
			"View the effective config: odata config show",
		},
		NoColor: noColor,
	})
}

// Warning creates a standardized warning message
func Warning(message string, noColor bool) string {
	return FormatError(ErrorOptions{Level: ErrorLevelWarning, Problem: message, NoColor: noColor})
}

// Info creates a standardized info message
func Info(message string, noColor bool) string {
	return FormatError(ErrorOptions{Level: ErrorLevelInfo, Problem: message, NoColor: noColor})
}
