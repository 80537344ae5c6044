package domain

import (
	"errors"
	"time"
)

// CancellationStatus represents the state of a cancellation request.
type CancellationStatus string

const (
	// CancellationPending awaits an administrator decision.
	CancellationPending CancellationStatus = "pendiente"
	// CancellationApproved means the order was cancelled.
	CancellationApproved CancellationStatus = "aprobada"
	// CancellationRejected means the request was declined.
	CancellationRejected CancellationStatus = "rechazada"
)

var (
	// ErrCancellationNotFound is returned when the request does not exist.
	ErrCancellationNotFound = errors.New("cancellation request not found")
	// ErrCancellationResolved is returned when deciding an already-resolved request.
	ErrCancellationResolved = errors.New("cancellation request already resolved")
	// ErrCancellationDuplicate is returned when the order already has a pending request.
	ErrCancellationDuplicate = errors.New("order already has a pending cancellation request")
)

// CancellationRequest is an employee-submitted request to cancel an order,
// resolved by an administrator. It is a plain approval queue, independent
// of the realtime tracking layer.
type CancellationRequest struct {
	// ID is the unique request identifier.
	ID string `json:"id" bson:"_id"`
	// OrderID is the order the request refers to.
	OrderID string `json:"pedidoId" bson:"order_id"`
	// RequestedBy is the employee who filed the request.
	RequestedBy string `json:"requestedBy" bson:"requested_by"`
	// Reason is the motivation given by the employee.
	Reason string `json:"motivo" bson:"reason"`
	// Status is the request state.
	Status CancellationStatus `json:"estado" bson:"status"`
	// ResolvedBy is the administrator who decided the request.
	ResolvedBy string `json:"resolvedBy,omitempty" bson:"resolved_by,omitempty"`
	// CreatedAt is when the request was filed.
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	// ResolvedAt is when the request was decided.
	ResolvedAt time.Time `json:"resolvedAt,omitempty" bson:"resolved_at,omitempty"`
}

// Resolve marks the request approved or rejected. Resolving twice fails.
func (r *CancellationRequest) Resolve(approve bool, adminID string, now time.Time) error {
	if r.Status != CancellationPending {
		return ErrCancellationResolved
	}
	if approve {
		r.Status = CancellationApproved
	} else {
		r.Status = CancellationRejected
	}
	r.ResolvedBy = adminID
	r.ResolvedAt = now
	return nil
}
