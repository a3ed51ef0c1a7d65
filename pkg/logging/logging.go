package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

type Logger struct {
	out     io.Writer
	err     io.Writer
	json    bool
	quiet   bool
	verbose bool
}

type ctxKey struct{}

func DefaultLogger() Logger {
	return Logger{
		out: os.Stdout,
		err: os.Stderr,
	}
}

func NewLogger(out, err io.Writer, json, quiet, verbose bool) Logger {
	return Logger{
		out:     out,
		err:     err,
		json:    json,
		quiet:   quiet,
		verbose: verbose,
	}
}

// Ctx returns the logger stored in the context, or a default logger if
// none was set.
func Ctx(ctx context.Context) Logger {
	l, ok := ctx.Value(ctxKey{}).(Logger)
	if !ok {
		return DefaultLogger()
	}
	return l
}

// WithContext returns a new context carrying this logger.
func (l Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

func (l *Logger) Out(f string, args ...interface{}) {
	fmt.Fprintf(l.out, f+"\n", args...)
}

func (l *Logger) OutRaw(s string) {
	fmt.Fprintf(l.out, "%s", s)
}

func (l *Logger) Info(tag string, f string, args ...interface{}) {
	if l.quiet {
		return
	}
	if l.json {
		printJSON(l.err, "info", tag, f, args...)
		return
	}
	print(l.err, color.New(color.FgHiGreen), tag, f, args...)
}

func (l *Logger) Debug(tag string, f string, args ...interface{}) {
	if !l.verbose || l.quiet {
		return
	}
	if l.json {
		printJSON(l.err, "debug", tag, f, args...)
		return
	}
	print(l.err, color.New(color.FgGreen), tag, f, args...)
}

func printJSON(w io.Writer, level, tag, f string, args ...interface{}) {
	line, err := json.Marshal(map[string]string{
		"level": level,
		"tag":   tag,
		"msg":   fmt.Sprintf(f, args...),
	})
	if err != nil {
		// A map[string]string cannot fail to marshal.
		panic(err)
	}
	fmt.Fprintf(w, "%s\n", line)
}

func print(w io.Writer, tagColor *color.Color, tag, f string, args ...interface{}) {
	str := fmt.Sprintf(f, args...)
	for _, line := range strings.Split(str, "\n") {
		fmt.Fprintf(w, "%s  %s\n",
			tagColor.Sprint(tag),
			color.WhiteString(line))
	}
}

type Writer struct {
	pipe io.Writer
	tag  string
}

func (l *Logger) InfoWriter(tag string) *Writer {
	return &Writer{
		pipe: l.err,
		tag:  tag,
	}
}

func (w *Writer) Write(data []byte) (n int, err error) {
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		fmt.Fprintf(w.pipe, "%s  %s\n",
			color.HiYellowString(w.tag),
			color.HiWhiteString(line))
	}
	return len(data), nil
}
