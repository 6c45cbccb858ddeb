// Package browser содержит общие для драйверов браузера помощники.
package browser

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/dreschagin/dashboard-extractor/internal/application/port"
)

// markers - тексты ошибок CDP, после которых вкладкой пользоваться нельзя.
var lostSessionMarkers = []string{
	"target closed",
	"session closed",
	"websocket: close",
	"connection reset by peer",
	"broken pipe",
}

// ClassifyError оборачивает ошибку драйвера в port.ErrSessionLost,
// если соединение с браузером потеряно. Остальные ошибки возвращаются как есть.
func ClassifyError(err error) error {
	if err == nil || errors.Is(err, port.ErrSessionLost) {
		return err
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %w", port.ErrSessionLost, err)
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range lostSessionMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %w", port.ErrSessionLost, err)
		}
	}
	return err
}
