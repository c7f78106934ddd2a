package receipt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sink stores rendered receipts. Writes are best effort: the ledger row is
// authoritative and callers report a failed Put as a warning.
type Sink interface {
	Put(ctx context.Context, name string, text string) error
}

type DiscardSink struct{}

func (DiscardSink) Put(_ context.Context, _ string, _ string) error {
	return nil
}

type FileSink struct {
	dir string
}

func NewFileSink(dir string) (*FileSink, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("receipt directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create receipt directory: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

func (s *FileSink) Put(ctx context.Context, name string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name == "" || name != filepath.Base(name) {
		return fmt.Errorf("invalid receipt name %q", name)
	}

	tmp, err := os.CreateTemp(s.dir, ".receipt-*")
	if err != nil {
		return fmt.Errorf("write receipt %s: %w", name, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.WriteString(Normalize(text)); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write receipt %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write receipt %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("write receipt %s: %w", name, err)
	}
	return nil
}
