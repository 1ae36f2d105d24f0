package upload

import (
	"context"
	"fmt"
)

// Kind classifies the asset being uploaded.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Token scene identifiers for get_upload_token; the backend routes each to
// a different storage subsystem.
const (
	SceneVOD    = 1 // video uploads
	SceneImageX = 2 // AIGC image uploads
)

// StatusStored is the result sentinel the backend reports for a persisted
// asset, both as the commit UriStatus and the transfer response code.
// Protocol-fixed.
const StatusStored = 2000

// MaxVideoDurationSeconds is the backend's hard ceiling on uploaded clips.
const MaxVideoDurationSeconds = 15.0

// Stage names the upload step that failed.
type Stage string

const (
	StageToken    Stage = "token"
	StageApply    Stage = "apply"
	StageTransfer Stage = "transfer"
	StageCommit   Stage = "commit"
)

// Error is a failed upload attempt with the failing stage attached. The
// pipeline never retries; a caller that does must start over with a fresh
// session.
type Error struct {
	Stage      Stage
	HTTPStatus int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("upload %s failed (http %d): %s", e.Stage, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("upload %s failed: %s", e.Stage, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrDurationExceeded marks a committed video longer than the backend allows.
var ErrDurationExceeded = fmt.Errorf("video duration exceeds %gs ceiling", MaxVideoDurationSeconds)

// Session is the short-lived credential bundle for exactly one upload
// attempt. It is acquired immediately before use, never pooled, and never
// reused after any failure. ServiceID carries the ImageX service id or the
// VOD space name depending on the scene.
type Session struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	ServiceID       string
}

// TokenFunc acquires a scoped Session for the given scene. Supplied by the
// backend client.
type TokenFunc func(ctx context.Context, scene int) (Session, error)

// Reference is the caller-facing handle to a successfully uploaded asset.
// Images carry a URI; videos carry a backend-assigned VID plus media
// metadata from the commit response.
type Reference struct {
	Kind            Kind
	URI             string
	VID             string
	Width           int
	Height          int
	DurationSeconds float64
	Format          string
	Codec           string
	SizeBytes       int64
	CRC32           string
}
