package core

import (
	"errors"
	"math"
	"testing"
)

func TestValidateEvent(t *testing.T) {
	tests := []struct {
		name    string
		event   *IngestionEvent
		wantErr error
	}{
		{
			name:    "valid created event",
			event:   &IngestionEvent{ItemID: "X", Operation: OperationCreated},
			wantErr: nil,
		},
		{
			name:    "valid deleted event",
			event:   &IngestionEvent{ItemID: "X", Operation: OperationDeleted},
			wantErr: nil,
		},
		{
			name:    "nil event",
			event:   nil,
			wantErr: ErrInvalidEvent,
		},
		{
			name:    "empty item id",
			event:   &IngestionEvent{Operation: OperationCreated},
			wantErr: ErrEmptyItemID,
		},
		{
			name:    "unknown operation",
			event:   &IngestionEvent{ItemID: "X", Operation: "renamed"},
			wantErr: ErrInvalidOperation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEvent(tt.event)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateEvent() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateEvent() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("ValidateEvent() error = %v, should wrap ErrInvalidEvent", err)
			}
		})
	}
}

func TestParseOperation(t *testing.T) {
	op, err := ParseOperation("created")
	if err != nil || op != OperationCreated {
		t.Errorf("ParseOperation(created) = %q, %v", op, err)
	}
	op, err = ParseOperation("deleted")
	if err != nil || op != OperationDeleted {
		t.Errorf("ParseOperation(deleted) = %q, %v", op, err)
	}
	if _, err := ParseOperation("CREATED"); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("ParseOperation(CREATED) error = %v, want ErrInvalidOperation", err)
	}
}

func TestValidateTarget(t *testing.T) {
	if err := ValidateTarget(&EmbeddingTarget{Model: "m", Version: 1}); err != nil {
		t.Errorf("ValidateTarget() unexpected error = %v", err)
	}
	if err := ValidateTarget(nil); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("ValidateTarget(nil) error = %v", err)
	}
	if err := ValidateTarget(&EmbeddingTarget{Version: 0}); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("ValidateTarget(version 0) error = %v", err)
	}
	if err := ValidateTarget(&EmbeddingTarget{Version: 2, Dimensions: -1}); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("ValidateTarget(negative dims) error = %v", err)
	}
}

func TestValidateVector(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	tests := []struct {
		name    string
		vector  []float32
		dims    int
		wantErr error
	}{
		{name: "valid any dims", vector: []float32{0.1, 0.2}, dims: 0},
		{name: "valid exact dims", vector: []float32{0.1, 0.2, 0.3}, dims: 3},
		{name: "empty", vector: nil, dims: 0, wantErr: ErrInvalidVector},
		{name: "nan", vector: []float32{0.1, nan}, dims: 0, wantErr: ErrInvalidVector},
		{name: "inf", vector: []float32{inf}, dims: 0, wantErr: ErrInvalidVector},
		{name: "wrong dims", vector: []float32{0.1, 0.2}, dims: 3, wantErr: ErrDimensionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateVector(tt.vector, tt.dims)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateVector() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateVector() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
