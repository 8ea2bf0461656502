package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/muesli/reflow/truncate"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/term"
	"pkt.systems/mdinc"
	"pkt.systems/version"
)

const (
	defaultChunkSize = 16
	defaultDelay     = 10 * time.Millisecond
	previewWidth     = 72
)

func init() {
	version.SetDefaultModule("pkt.systems/mdinc")
}

func main() {
	var (
		simChunkSize   int
		simDelay       time.Duration
		outPath        string
		sanitize       bool
		highlightStyle string
		noHighlight    bool
		verbose        bool
	)

	flags := pflag.NewFlagSet("mdinc", pflag.ExitOnError)
	flags.IntVar(&simChunkSize, "simulate-chunk", defaultChunkSize, "Runes per stream chunk")
	flags.DurationVar(&simDelay, "simulate-delay", defaultDelay, "Delay per stream chunk")
	flags.StringVarP(&outPath, "output", "o", "", "Output file instead of stdout")
	flags.BoolVar(&sanitize, "sanitize", false, "Sanitize rendered HTML output")
	flags.StringVar(&highlightStyle, "highlight-style", "", "Chroma style for code block highlighting")
	flags.BoolVar(&noHighlight, "no-highlight", false, "Disable the code block highlight pass")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log streaming progress to stderr")

	flags.SetInterspersed(true)
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, version.Module(), version.Current())
		fmt.Fprintf(os.Stderr, "Usage: mdinc [flags] [inputs...]\n")
		fmt.Fprintln(os.Stderr, "\nIf no input is provided, Markdown is read from stdin.")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flags.PrintDefaults()
	}

	if err := flags.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}

	args := flags.Args()
	reader, closer, err := openInputs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open input: %v\n", err)
		os.Exit(1)
	}
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}

	writer, closeOut, err := resolveOutput(outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open output: %v\n", err)
		os.Exit(1)
	}
	if closeOut != nil {
		defer func() { _ = closeOut.Close() }()
	}

	opts := []mdinc.Option{
		mdinc.WithLogger(logger),
		mdinc.WithSanitizeInput(true),
	}
	if noHighlight {
		opts = append(opts, mdinc.WithHighlighter(nil))
	} else if highlightStyle != "" {
		opts = append(opts, mdinc.WithHighlighter(mdinc.NewHighlighter(highlightStyle, logger)))
	}
	if sanitize {
		opts = append(opts, mdinc.WithRenderer(mdinc.NewEngine(mdinc.WithSanitizer(true))))
	}

	ctrl := mdinc.NewController(opts...)
	sink := mdinc.Sink(&mdinc.HTMLAssembler{})
	if verbose {
		sink = &progressSink{next: sink, logger: logger}
	}

	if err := mdinc.Simulate(mdinc.SimulateRequest{
		Reader:     &frontMatterReader{r: reader},
		Sink:       sink,
		Controller: ctrl,
		ChunkSize:  simChunkSize,
		Delay:      simDelay,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "stream: %v\n", err)
		os.Exit(1)
	}

	if _, err := io.WriteString(writer, ctrl.HTML()); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		os.Exit(1)
	}
}

// progressSink logs each update before handing it to the wrapped sink. On a
// terminal the committed fragments are previewed truncated to one line.
type progressSink struct {
	next   mdinc.Sink
	logger logrus.FieldLogger
	count  int
}

func (p *progressSink) Apply(up mdinc.Update) error {
	p.count++
	entry := p.logger.WithFields(logrus.Fields{
		"update":    p.count,
		"committed": len(up.Committed),
		"reset":     up.Reset,
	})
	if up.Events.Start {
		entry.Debug("stream started")
	}
	for _, frag := range up.Committed {
		entry.WithField("fragment", preview(frag)).Debug("committed")
	}
	if up.Events.Complete {
		entry.Debug("stream complete")
	}
	return p.next.Apply(up)
}

func preview(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	width := uint(previewWidth)
	if term.IsTerminal(int(os.Stderr.Fd())) {
		if w, _, err := term.GetSize(int(os.Stderr.Fd())); err == nil && w > 40 {
			width = uint(w - 40)
		}
	}
	return truncate.StringWithTail(s, width, "…")
}

// frontMatterReader validates the input and strips a leading front matter
// section before the content reaches the stream simulator. It buffers the
// whole input once.
type frontMatterReader struct {
	r    io.Reader
	body *strings.Reader
	err  error
}

func (f *frontMatterReader) Read(p []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.body == nil {
		raw, err := io.ReadAll(f.r)
		if err != nil {
			f.err = err
			return 0, err
		}
		if err := mdinc.ValidateInput(raw); err != nil {
			f.err = err
			return 0, err
		}
		f.body = strings.NewReader(mdinc.StripFrontMatter(string(raw)))
	}
	return f.body.Read(p)
}

type inputSource struct {
	open func() (io.Reader, io.Closer, error)
}

type multiInputReader struct {
	sources   []inputSource
	idx       int
	cur       io.Reader
	curCloser io.Closer
	closed    bool
}

func (m *multiInputReader) Read(p []byte) (int, error) {
	for {
		if m.closed {
			return 0, io.EOF
		}
		if m.cur == nil {
			if m.idx >= len(m.sources) {
				m.closed = true
				return 0, io.EOF
			}
			reader, closer, err := m.sources[m.idx].open()
			if err != nil {
				return 0, err
			}
			m.cur = reader
			m.curCloser = closer
			m.idx++
		}
		n, err := m.cur.Read(p)
		if n > 0 {
			return n, nil
		}
		if err == io.EOF {
			if m.curCloser != nil {
				_ = m.curCloser.Close()
			}
			m.cur = nil
			m.curCloser = nil
			continue
		}
		if err != nil {
			return 0, err
		}
	}
}

func (m *multiInputReader) Close() error {
	m.closed = true
	if m.curCloser != nil {
		return m.curCloser.Close()
	}
	return nil
}

func openInputs(args []string) (io.Reader, io.Closer, error) {
	if len(args) == 0 {
		return os.Stdin, nil, nil
	}
	sources := make([]inputSource, 0, len(args))
	for _, raw := range args {
		src, err := makeInputSource(raw)
		if err != nil {
			return nil, nil, err
		}
		sources = append(sources, src)
	}
	return &multiInputReader{sources: sources}, nil, nil
}

func makeInputSource(raw string) (inputSource, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return inputSource{}, fmt.Errorf("empty input argument")
	}
	u, err := url.Parse(raw)
	if err == nil && u.Scheme != "" {
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return inputSource{open: func() (io.Reader, io.Closer, error) {
				return openURL(raw)
			}}, nil
		case "file":
			path := u.Path
			if path == "" {
				path = u.Host
			}
			if unescaped, err := url.PathUnescape(path); err == nil {
				path = unescaped
			}
			return inputSource{open: func() (io.Reader, io.Closer, error) {
				return openFile(path)
			}}, nil
		}
	}
	return inputSource{open: func() (io.Reader, io.Closer, error) {
		return openFile(raw)
	}}, nil
}

func openURL(raw string) (io.Reader, io.Closer, error) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, raw, nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, nil, fmt.Errorf("http %s: %s", raw, resp.Status)
	}
	return resp.Body, resp.Body, nil
}

func openFile(path string) (io.Reader, io.Closer, error) {
	clean := normalizePath(path)
	f, err := os.Open(clean)
	if err != nil {
		return nil, nil, err
	}
	return f, f, nil
}

func resolveOutput(path string) (io.Writer, io.Closer, error) {
	if strings.TrimSpace(path) == "" {
		return os.Stdout, nil, nil
	}
	clean := normalizePath(path)
	dir := filepath.Dir(clean)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, err
		}
	}
	f, err := os.Create(clean)
	if err != nil {
		return nil, nil, err
	}
	return f, f, nil
}

func normalizePath(path string) string {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			if path == "~" {
				path = home
			} else {
				path = filepath.Join(home, path[2:])
			}
		}
	}
	abs, err := filepath.Abs(path)
	if err == nil {
		return abs
	}
	return path
}
