package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	domainwf "github.com/garyjia/barangay-lifecycle/internal/domain/workflow"
)

func TestKnownStatus(t *testing.T) {
	tests := []struct {
		name   string
		typ    domainwf.RequestType
		status domainwf.Status
		want   bool
	}{
		{"clearance status", domainwf.TypeBarangayClearance, domainwf.StatusForPickup, true},
		{"report status on clearance", domainwf.TypeBarangayClearance, domainwf.StatusUnderInvestigation, false},
		{"any type", "", domainwf.StatusResolved, true},
		{"unknown", "", domainwf.Status("ARCHIVED"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, knownStatus(tt.typ, tt.status))
		})
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "migrate", "export-ledger"}, names)

	export, _, err := root.Find([]string{"export-ledger"})
	assert.NoError(t, err)
	assert.NotNil(t, export.Flags().Lookup("barangay"))
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}
