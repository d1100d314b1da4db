package server

import (
	"github.com/menta2k/photo-annotator/pkg/tagging"
	"github.com/menta2k/photo-annotator/pkg/types"
)

// Response is the success envelope
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse is the failure envelope
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// SessionInfo describes a mounted session
type SessionInfo struct {
	ID      string `json:"id"`
	TagMode string `json:"tagMode"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

// PointerResult is returned by the pointer routes
type PointerResult struct {
	State   string      `json:"state"`
	Changed bool        `json:"changed"`
	Pending *types.Rect `json:"pending,omitempty"`
}

// AnnotationView is one line of the annotation list
type AnnotationView struct {
	Label  string       `json:"label"`
	Rect   types.Rect   `json:"rect"`
	Record types.Record `json:"record"`
}

// TagView is the state of the pending tag dialog
type TagView struct {
	Pending *types.Rect         `json:"pending,omitempty"`
	Mode    string              `json:"mode"`
	Modal   *tagging.ModalState `json:"modal,omitempty"`
}

// SelectRequest selects a catalog product in the modal
type SelectRequest struct {
	ProductID types.ProductID `json:"productId"`
}

// SubmitStatus reports the state of the last upload
type SubmitStatus struct {
	InFlight bool   `json:"inFlight"`
	Done     bool   `json:"done"`
	Response any    `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}
