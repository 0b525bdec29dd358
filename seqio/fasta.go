// Package seqio loads assembly sequences and provides small sequence
// utilities shared by the polishing pipeline.
package seqio

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/pkg/errors"
)

const scanBufSize = 64 * 1024 * 1024

// Parse reads FASTA data and returns the sequence names in file order plus
// a name -> sequence map. Sequences are uppercased. Sequence names are the
// characters between '>' and the first whitespace; the rest of the header
// line is ignored.
//
// Unlike a permissive FASTA reader, Parse rejects input that would corrupt
// a polishing run: sequence data before the first header, unnamed or empty
// sequences, duplicated names, and files with no sequences at all.
func Parse(r io.Reader) ([]string, map[string]string, error) {
	var (
		names []string
		seqs  = make(map[string]string)
		name  string
		seq   strings.Builder
	)
	flush := func() error {
		if name == "" {
			return nil
		}
		if seq.Len() == 0 {
			return errors.Errorf("FASTA sequence %q is empty", name)
		}
		if _, dup := seqs[name]; dup {
			return errors.Errorf("FASTA sequence name %q is duplicated", name)
		}
		seqs[name] = strings.ToUpper(seq.String())
		names = append(names, name)
		seq.Reset()
		return nil
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, scanBufSize)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			if err := flush(); err != nil {
				return nil, nil, err
			}
			name = strings.SplitN(line[1:], " ", 2)[0]
			if name == "" {
				return nil, nil, errors.New("FASTA file has an unnamed sequence")
			}
		} else {
			if name == "" {
				return nil, nil, errors.New("malformed FASTA file: sequence data before first header")
			}
			seq.WriteString(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "couldn't read FASTA data")
	}
	if err := flush(); err != nil {
		return nil, nil, err
	}
	if len(names) == 0 {
		return nil, nil, errors.New("FASTA file contains no sequences")
	}
	return names, seqs, nil
}

// Load parses the FASTA file at path, transparently decompressing gzip and
// the other formats compress recognizes.
func Load(ctx context.Context, path string) (names []string, seqs map[string]string, err error) {
	var in file.File
	if in, err = file.Open(ctx, path); err != nil {
		return
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	reader, _ := compress.NewReader(in.Reader(ctx))
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()
	if names, seqs, err = Parse(reader); err != nil {
		err = errors.Wrap(err, path)
	}
	return
}
