package csvcodec

import (
	"bufio"
	"errors"
	"io"

	"vendinha/internal/domain"
)

// recordReader splits RFC 4180 text into records. Records end at LF or CR LF
// outside quotes. Quoted fields are returned byte for byte, so a CR LF inside
// one survives a round trip; encoding/csv folds it to LF.
type recordReader struct {
	br   *bufio.Reader
	line int
}

func newRecordReader(r io.Reader) *recordReader {
	br := bufio.NewReader(r)
	if bom, err := br.Peek(3); err == nil && string(bom) == "\ufeff" {
		_, _ = br.Discard(3)
	}
	return &recordReader{br: br, line: 1}
}

// read returns the next record and the line it starts on. Blank lines are
// skipped. It returns io.EOF once the input is exhausted.
func (rr *recordReader) read() ([]string, int, error) {
	for {
		b, err := rr.br.ReadByte()
		if err != nil {
			return nil, rr.line, err
		}
		if b == '\n' {
			rr.line++
			continue
		}
		if b == '\r' && rr.skip('\n') {
			rr.line++
			continue
		}
		if err := rr.br.UnreadByte(); err != nil {
			return nil, rr.line, err
		}
		break
	}

	start := rr.line
	var fields []string
	for {
		field, last, err := rr.field(start)
		if err != nil {
			return nil, start, err
		}
		fields = append(fields, field)
		if last {
			return fields, start, nil
		}
	}
}

// field reads one field and reports whether it ended the record.
func (rr *recordReader) field(start int) (string, bool, error) {
	b, err := rr.br.ReadByte()
	if errors.Is(err, io.EOF) {
		return "", true, nil
	}
	if err != nil {
		return "", false, err
	}
	if b == '"' {
		return rr.quoted(start)
	}

	var buf []byte
	for {
		switch {
		case b == ',':
			return string(buf), false, nil
		case b == '\n':
			rr.line++
			return string(buf), true, nil
		case b == '\r' && rr.skip('\n'):
			rr.line++
			return string(buf), true, nil
		case b == '"':
			return "", false, rr.invalid(rr.line, `bare " in non-quoted field`)
		}
		buf = append(buf, b)

		b, err = rr.br.ReadByte()
		if errors.Is(err, io.EOF) {
			return string(buf), true, nil
		}
		if err != nil {
			return "", false, err
		}
	}
}

func (rr *recordReader) quoted(start int) (string, bool, error) {
	var buf []byte
	for {
		b, err := rr.br.ReadByte()
		if errors.Is(err, io.EOF) {
			return "", false, rr.invalid(start, "quoted field is never closed")
		}
		if err != nil {
			return "", false, err
		}
		if b == '\n' {
			rr.line++
		}
		if b != '"' {
			buf = append(buf, b)
			continue
		}

		next, err := rr.br.ReadByte()
		switch {
		case errors.Is(err, io.EOF):
			return string(buf), true, nil
		case err != nil:
			return "", false, err
		case next == '"':
			buf = append(buf, '"')
		case next == ',':
			return string(buf), false, nil
		case next == '\n':
			rr.line++
			return string(buf), true, nil
		case next == '\r' && rr.skip('\n'):
			rr.line++
			return string(buf), true, nil
		default:
			return "", false, rr.invalid(rr.line, `extraneous " in quoted field`)
		}
	}
}

// skip consumes the next byte when it equals want.
func (rr *recordReader) skip(want byte) bool {
	next, err := rr.br.Peek(1)
	if err != nil || next[0] != want {
		return false
	}
	_, _ = rr.br.Discard(1)
	return true
}

func (rr *recordReader) invalid(line int, reason string) error {
	return &domain.ValidationError{Line: line, Reason: reason}
}
