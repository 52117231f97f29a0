package wallet

import (
	"context"
	"fmt"
	"io"

	slogctx "github.com/veqryn/slog-context"

	"github.com/layer-3/folio/ports"
)

// LogOpener records install pages in the log instead of opening them
type LogOpener struct{}

var _ ports.PageOpener = LogOpener{}

// Open logs url
func (LogOpener) Open(ctx context.Context, url string) error {
	slogctx.Info(ctx, "Open this page to install the wallet", "url", url)
	return nil
}

// WriterOpener prints install pages to w, for terminals
type WriterOpener struct {
	W io.Writer
}

var _ ports.PageOpener = WriterOpener{}

// Open writes url to the writer
func (o WriterOpener) Open(ctx context.Context, url string) error {
	_, err := fmt.Fprintf(o.W, "wallet not installed, install it from %s\n", url)
	return err
}
