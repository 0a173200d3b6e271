package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"

	"github.com/Alijeyrad/carelink/internal/model"
)

// translate maps driver failures onto the messaging error taxonomy. Errors
// that are already part of the taxonomy pass through untouched.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, model.ErrNotFound),
		errors.Is(err, model.ErrUnauthorized),
		errors.Is(err, model.ErrInvalidArguments):
		return err
	case errors.Is(err, context.Canceled):
		return err
	case transient(err):
		return fmt.Errorf("%s: %w: %v", op, model.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func transient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		switch {
		case strings.HasPrefix(code, "08"), // connection exception
			strings.HasPrefix(code, "53"),  // insufficient resources
			strings.HasPrefix(code, "57P"), // operator intervention
			code == "40001", code == "40P01":
			return true
		}
	}
	return false
}
