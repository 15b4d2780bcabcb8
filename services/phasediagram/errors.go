// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package phasediagram

import (
	"context"
	"errors"
	"net/http"

	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/composition"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/formula"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/hull"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/observability"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/stability"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/store"
)

var (
	// ErrNoDataForSystem is returned when no phase with a formation
	// energy exists in the requested system or any of its subsystems.
	ErrNoDataForSystem = errors.New("no data for chemical system")

	// ErrInvalidRequest is returned for malformed request parameters
	// that are not chemical systems.
	ErrInvalidRequest = errors.New("invalid request")
)

// Error codes carried in ErrorResponse.Code.
const (
	CodeInvalidChemsys   = "INVALID_CHEMSYS"
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeNoData           = "NO_DATA"
	CodeDataInconsistent = "DATA_INCONSISTENT"
	CodeTimeout          = "TIMEOUT"
	CodeCanceled         = "CANCELED"
	CodeInternal         = "INTERNAL"
)

// StatusClientClosedRequest is reported when the caller went away before
// the response was ready. It never reaches the client.
const StatusClientClosedRequest = 499

// StatusOf maps an error from Service to an HTTP status and error code.
func StatusOf(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, composition.ErrInvalidSystem) && !errors.Is(err, store.ErrInvalidPhase):
		return http.StatusBadRequest, CodeInvalidChemsys
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, store.ErrInvalidPhase):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, ErrNoDataForSystem):
		return http.StatusNotFound, CodeNoData
	case errors.Is(err, stability.ErrHullInvariantViolation):
		return http.StatusInternalServerError, CodeInternal
	case errors.Is(err, formula.ErrMalformedFormula),
		errors.Is(err, composition.ErrCompositionOutOfSystem),
		errors.Is(err, composition.ErrInvalidComposition),
		errors.Is(err, hull.ErrInsufficientPoints),
		errors.Is(err, hull.ErrDegenerateGeometry),
		errors.Is(err, hull.ErrCompositionOutsideHullSpan),
		errors.Is(err, hull.ErrInvalidInput):
		return http.StatusUnprocessableEntity, CodeDataInconsistent
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, CodeCanceled
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func outcomeOf(err error) observability.Outcome {
	status, code := StatusOf(err)
	switch {
	case err == nil:
		return observability.OutcomeSuccess
	case status == http.StatusBadRequest:
		return observability.OutcomeInvalid
	case status == http.StatusNotFound:
		return observability.OutcomeNotFound
	case code == CodeDataInconsistent:
		return observability.OutcomeInconsistent
	case code == CodeCanceled:
		return observability.OutcomeCanceled
	default:
		return observability.OutcomeError
	}
}
