package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"strings"

	"github.com/CTAG07/Pronostico/pkg/markov"
)

// ErrSourceNotFound is returned when the log a Source points at does not exist.
var ErrSourceNotFound = errors.New("data source not found")

// Source produces the observations of a log, in any order.
type Source interface {
	Load(ctx context.Context) ([]markov.Observation, error)
}

// Sink stores a log, replacing what was there before.
type Sink interface {
	Save(ctx context.Context, obs []markov.Observation) error
}

// Location is a place a log can be both read from and written to.
type Location interface {
	Source
	Sink
}

// Options configures Open.
type Options struct {
	Columns Columns
	S3      S3Config
}

// Open returns the Location described by uri. "s3://bucket/key" addresses an
// S3 object; "file://path" and plain paths address local files.
func Open(ctx context.Context, uri string, opts Options) (Location, error) {
	if !strings.Contains(uri, "://") {
		return &FileSource{Path: uri, Columns: opts.Columns}, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid data source %q: %w", uri, err)
	}
	switch u.Scheme {
	case "file":
		return &FileSource{Path: u.Host + u.Path, Columns: opts.Columns}, nil
	case "s3":
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return nil, fmt.Errorf("invalid s3 uri %q: bucket and key are required", uri)
		}
		client, err := NewS3Client(ctx, opts.S3)
		if err != nil {
			return nil, fmt.Errorf("could not create s3 client: %w", err)
		}
		return &S3Source{Client: client, Bucket: u.Host, Key: key, Columns: opts.Columns}, nil
	default:
		return nil, fmt.Errorf("unsupported data source scheme %q", u.Scheme)
	}
}

// FileSource is a log stored as a local CSV file.
type FileSource struct {
	Path    string
	Columns Columns
}

// Load reads and parses the file. A missing file yields ErrSourceNotFound.
func (f *FileSource) Load(_ context.Context) ([]markov.Observation, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrSourceNotFound, err)
		}
		return nil, err
	}
	defer func(file *os.File) {
		_ = file.Close()
	}(file)

	obs, err := ReadCSV(file, f.Columns)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	return obs, nil
}

// Save atomically replaces the file with obs.
func (f *FileSource) Save(_ context.Context, obs []markov.Observation) error {
	return WriteFile(f.Path, obs, f.Columns)
}

func (f *FileSource) String() string { return f.Path }

// ReaderSource parses a log from an arbitrary reader. It can only be loaded once.
type ReaderSource struct {
	R       io.Reader
	Columns Columns
}

// Load parses the reader's content.
func (r *ReaderSource) Load(_ context.Context) ([]markov.Observation, error) {
	return ReadCSV(r.R, r.Columns)
}
