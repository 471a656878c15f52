package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Dosada05/results-engine/models"
)

func TestIsValidResultsTransition(t *testing.T) {
	tests := []struct {
		name    string
		current models.ResultsStatus
		next    models.ResultsStatus
		want    bool
	}{
		{"same state", models.ResultsInProgress, models.ResultsInProgress, true},
		{"first results", models.ResultsNone, models.ResultsInProgress, true},
		{"finalize", models.ResultsInProgress, models.ResultsFinal, true},
		{"reopen", models.ResultsFinal, models.ResultsInProgress, true},
		{"reset from in progress", models.ResultsInProgress, models.ResultsNone, true},
		{"reset from final", models.ResultsFinal, models.ResultsNone, true},
		{"skip straight to final", models.ResultsNone, models.ResultsFinal, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isValidResultsTransition(tt.current, tt.next))
		})
	}
}
