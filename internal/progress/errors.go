package progress

import (
	"github.com/example/examprep/pkg/models"
	"github.com/pkg/errors"
)

var (
	ErrUnknownSubject  = errors.New("unknown subject")
	ErrNotFound        = errors.New("not found")
	ErrNotDue          = errors.New("not due for review")
	ErrQuotaExceeded   = errors.New("daily quota exceeded")
	ErrAnalysisUsed    = errors.New("free analysis already used")
	ErrInvalidArgument = errors.New("invalid argument")
)

func checkSubject(s models.Subject) error {
	if !s.Valid() {
		return errors.Wrapf(ErrUnknownSubject, "%q", s)
	}
	return nil
}
