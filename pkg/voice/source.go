package voice

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// Source yields transcribed utterances. Next blocks until one is
// available and returns io.EOF when the source is exhausted.
type Source interface {
	Next(ctx context.Context) (string, error)
}

type line struct {
	text string
	err  error
}

// LineSource reads one utterance per line, e.g. from stdin or the output
// of an external speech-to-text process. Blank lines are skipped.
type LineSource struct {
	lines chan line
}

// NewLineSource starts reading r in the background.
func NewLineSource(r io.Reader) *LineSource {
	s := &LineSource{lines: make(chan line)}
	go s.read(r)
	return s
}

func (s *LineSource) read(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		s.lines <- line{text: text}
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	s.lines <- line{err: err}
	close(s.lines)
}

// Next returns the next non-blank line.
func (s *LineSource) Next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l, ok := <-s.lines:
		if !ok {
			return "", io.EOF
		}
		return l.text, l.err
	}
}
