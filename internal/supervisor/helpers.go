package supervisor

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"

	"github.com/tessro/rig/internal/config"
	"github.com/tessro/rig/internal/daemon"
	"github.com/tessro/rig/internal/envfile"
	"github.com/tessro/rig/internal/process"
	"github.com/tessro/rig/internal/project"
)

// successResponse creates a successful response.
func successResponse(req *daemon.Request, payload any) *daemon.Response {
	return &daemon.Response{
		Type:    req.Type,
		ID:      req.ID,
		Success: true,
		Payload: payload,
	}
}

// errorResponse creates an error response with an explicit code.
func errorResponse(req *daemon.Request, code daemon.ErrorCode, msg string) *daemon.Response {
	return &daemon.Response{
		Type:    req.Type,
		ID:      req.ID,
		Success: false,
		Error:   msg,
		Code:    code,
	}
}

// failure creates an error response coded from err.
func failure(req *daemon.Request, err error) *daemon.Response {
	return errorResponse(req, errorCode(err), err.Error())
}

// errorCode classifies err for the wire.
func errorCode(err error) daemon.ErrorCode {
	var (
		pathErr *fs.PathError
		linkErr *os.LinkError
		sysErr  *os.SyscallError
	)
	switch {
	case config.IsValidationError(err),
		errors.Is(err, project.ErrInvalidConcept):
		return daemon.CodeValidation
	case errors.Is(err, project.ErrNotFound),
		errors.Is(err, project.ErrConceptNotFound),
		errors.Is(err, project.ErrTemplateNotFound),
		errors.Is(err, envfile.ErrNotFound):
		return daemon.CodeNotFound
	case errors.Is(err, project.ErrExists):
		return daemon.CodeAlreadyExists
	case errors.Is(err, ErrAlreadyRunning):
		return daemon.CodeAlreadyRunning
	case errors.Is(err, ErrNotRunning):
		return daemon.CodeNotRunning
	case errors.Is(err, process.ErrSpawn):
		return daemon.CodeSpawnFailure
	case errors.As(err, &pathErr), errors.As(err, &linkErr), errors.As(err, &sysErr):
		return daemon.CodeIOFailure
	default:
		return daemon.CodeInternal
	}
}

// unmarshalPayload converts an any payload to a specific type.
func unmarshalPayload(payload any, dst any) error {
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// decodeRequest decodes the payload into T, answering with a validation
// failure when it does not fit.
func decodeRequest[T any](req *daemon.Request) (T, *daemon.Response) {
	var v T
	if err := unmarshalPayload(req.Payload, &v); err != nil {
		return v, errorResponse(req, daemon.CodeValidation, "invalid payload: "+err.Error())
	}
	return v, nil
}
