package notify

import (
    "context"
    "fmt"
    "os"
    "path/filepath"

    qrcode "github.com/skip2/go-qrcode"
)

// QRGenerator renders a ticket's QR payload and returns where the
// artifact was stored.  Generating twice for the same ticket number
// overwrites the same artifact.
type QRGenerator interface {
    Generate(ctx context.Context, payload, ticketNumber string) (string, error)
}

// FileQR writes PNG QR codes into Dir.
type FileQR struct {
    Dir  string
    Size int
}

// NewFileQR returns a generator writing 256px codes to dir.
func NewFileQR(dir string) *FileQR { return &FileQR{Dir: dir, Size: 256} }

// Generate encodes payload and writes <dir>/<ticketNumber>.png.
func (g *FileQR) Generate(ctx context.Context, payload, ticketNumber string) (string, error) {
    if err := ctx.Err(); err != nil {
        return "", err
    }
    if err := os.MkdirAll(g.Dir, 0o755); err != nil {
        return "", fmt.Errorf("mkdir qr dir: %w", err)
    }
    path := filepath.Join(g.Dir, ticketNumber+".png")
    if err := qrcode.WriteFile(payload, qrcode.Medium, g.Size, path); err != nil {
        return "", fmt.Errorf("write qr: %w", err)
    }
    return path, nil
}
