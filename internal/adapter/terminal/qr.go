package terminal

import (
	"errors"
	"fmt"
	"io"

	"github.com/mdp/qrterminal/v3"
)

// QRRenderer draws QR codes with half-block characters.
type QRRenderer struct {
	out io.Writer
}

// NewQRRenderer creates a renderer writing to out.
func NewQRRenderer(out io.Writer) *QRRenderer {
	return &QRRenderer{out: out}
}

// Render prints payload as a QR code.
func (r *QRRenderer) Render(payload string) error {
	if payload == "" {
		return errors.New("empty qr payload")
	}
	fmt.Fprintln(r.out, "\nScan this QR code with the TypeX app:")
	fmt.Fprintln(r.out)
	qrterminal.GenerateHalfBlock(payload, qrterminal.L, r.out)
	return nil
}
