//go:build !linux

package services

import (
	"context"

	"LabelPrinter/app/models"
)

func rfcommSend(ctx context.Context, addr [6]byte, channel uint8, payload []byte) error {
	return models.ErrBluetoothNotSupported
}
