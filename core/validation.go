// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"fmt"
	"math"
)

func ValidateEvent(event *IngestionEvent) error {
	if event == nil {
		return fmt.Errorf("%w: event is nil", ErrInvalidEvent)
	}

	if event.ItemID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, ErrEmptyItemID)
	}

	if err := ValidateOperation(event.Operation); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	return nil
}

func ValidateOperation(op Operation) error {
	if op != OperationCreated && op != OperationDeleted {
		return fmt.Errorf("%w: %q", ErrInvalidOperation, op)
	}
	return nil
}

// ParseOperation converts user input into an Operation.
func ParseOperation(s string) (Operation, error) {
	op := Operation(s)
	if err := ValidateOperation(op); err != nil {
		return "", err
	}
	return op, nil
}

func ValidateTarget(target *EmbeddingTarget) error {
	if target == nil {
		return fmt.Errorf("%w: target is nil", ErrInvalidTarget)
	}
	if target.Version < 1 {
		return fmt.Errorf("%w: version must be at least 1", ErrInvalidTarget)
	}
	if target.Dimensions < 0 {
		return fmt.Errorf("%w: dimensions cannot be negative", ErrInvalidTarget)
	}
	return nil
}

// ValidateVector checks that v is non-empty, finite and, when dims > 0,
// has exactly dims components.
func ValidateVector(v []float32, dims int) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidVector)
	}
	if dims > 0 && len(v) != dims {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, dims, len(v))
	}
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: component %d is not finite", ErrInvalidVector, i)
		}
	}
	return nil
}
