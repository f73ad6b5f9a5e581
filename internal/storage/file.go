package storage

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"

	"tasktrack/internal/task"
	"tasktrack/internal/taskerr"
	logx "tasktrack/pkg/logx"
)

// codec turns records into bytes and back. decode reports each record it had
// to drop through skip and keeps going.
type codec interface {
	encode(w io.Writer, recs []Record) error
	decode(r io.Reader, skip func(where string, err error)) ([]Record, error)
}

// fileStore keeps the whole collection in a single file.
type fileStore struct {
	log   logx.Logger
	path  string
	codec codec

	mu sync.Mutex
}

func openFile(path string, c codec, log logx.Logger) (Store, error) {
	path = strings.TrimSpace(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path, codec: c}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) Save(ctx context.Context, tasks []task.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := s.codec.encode(w, records(tasks)); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	s.log.Debug("tasks saved", logx.String("path", s.path), logx.Int("count", len(tasks)))
	return nil
}

func (s *fileStore) Load(ctx context.Context) ([]task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	skip := func(where string, err error) {
		s.log.Warn("skipping malformed record", logx.String("path", s.path), logx.String("at", where), logx.Err(err))
	}
	recs, err := s.codec.decode(bufio.NewReader(f), skip)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", s.path, err)
	}
	out := make([]task.Task, 0, len(recs))
	for i, r := range recs {
		t, err := r.task()
		if err != nil {
			skip(fmt.Sprintf("record %d", i+1), err)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

type csvCodec struct{}

func (csvCodec) encode(w io.Writer, recs []Record) error {
	cw := csv.NewWriter(w)
	for _, r := range recs {
		completed := "false"
		if r.Completed {
			completed = "true"
		}
		if err := cw.Write([]string{r.Name, r.Description, r.Deadline, completed}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (csvCodec) decode(r io.Reader, skip func(string, error)) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	var out []Record
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			skip(fmt.Sprintf("line %d", perr.Line), err)
			continue
		}
		if err != nil {
			return nil, err
		}
		if len(fields) != 4 {
			line, _ := cr.FieldPos(0)
			skip(fmt.Sprintf("line %d", line), fmt.Errorf("want 4 fields, got %d", len(fields)))
			continue
		}
		out = append(out, Record{
			Name:        fields[0],
			Description: fields[1],
			Deadline:    strings.TrimSpace(fields[2]),
			Completed:   strings.EqualFold(strings.TrimSpace(fields[3]), "true"),
		})
	}
}

type jsonCodec struct{}

func (jsonCodec) encode(w io.Writer, recs []Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}

func (jsonCodec) decode(r io.Reader, skip func(string, error)) ([]Record, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Record, 0, len(raw))
	for i, m := range raw {
		var rec Record
		if err := json.Unmarshal(m, &rec); err != nil {
			skip(fmt.Sprintf("record %d", i+1), err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

type yamlCodec struct{}

func (yamlCodec) encode(w io.Writer, recs []Record) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(recs); err != nil {
		return err
	}
	return enc.Close()
}

func (yamlCodec) decode(r io.Reader, skip func(string, error)) ([]Record, error) {
	var nodes []yaml.Node
	if err := yaml.NewDecoder(r).Decode(&nodes); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Record, 0, len(nodes))
	for i := range nodes {
		var rec Record
		if err := nodes[i].Decode(&rec); err != nil {
			skip(fmt.Sprintf("line %d", nodes[i].Line), err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Exists reports whether path names an existing file.
func Exists(path string) (bool, error) {
	if strings.TrimSpace(path) == "" {
		return false, taskerr.Validation("storage.Exists", "file name cannot be empty")
	}
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Remove deletes the file at path. Removing a file that does not exist is an
// error.
func Remove(path string) error {
	if strings.TrimSpace(path) == "" {
		return taskerr.Validation("storage.Remove", "file name cannot be empty")
	}
	return os.Remove(path)
}
