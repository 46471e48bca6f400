package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanflow/internal/audit"
	"loanflow/internal/common/config"
	"loanflow/internal/common/logger"
	"loanflow/internal/gateway"
)

func testGateways(t *testing.T, services ...string) []*gateway.Gateway {
	t.Helper()
	pool := gateway.NewPool()
	rec := audit.NewRecorder(audit.NewMemoryStore(), 8, logger.NewNoOpLogger())
	gws := make([]*gateway.Gateway, 0, len(services))
	for _, svc := range services {
		gws = append(gws, gateway.New(svc, config.ToolServiceConfig{
			Endpoint: "http://localhost:0",
			Timeout:  1000,
		}, pool, rec, logger.NewNoOpLogger()))
	}
	return gws
}

func TestToolDefs_OnlyOwnOperationsAdvertised(t *testing.T) {
	gws := testGateways(t, "employment-verification", "document-processing")

	defs := toolDefs(gws)
	require.Len(t, defs, 2)

	byService := make(map[string]string, len(defs))
	for _, def := range defs {
		byService[def.Service] = def.Operation
	}
	assert.Equal(t, "verify-employment", byService["employment-verification"])
	assert.Equal(t, "extract-documents", byService["document-processing"])
}

func TestToolDefs_MultiOperationService(t *testing.T) {
	defs := toolDefs(testGateways(t, "financial-calculator"))
	require.Len(t, defs, 2)

	var ops []string
	for _, def := range defs {
		assert.Equal(t, "financial-calculator", def.Service)
		ops = append(ops, def.Operation)
	}
	assert.ElementsMatch(t, []string{"affordability", "price-loan"}, ops)
}

func TestToolDefs_UnknownServiceAdvertisesNothing(t *testing.T) {
	assert.Empty(t, toolDefs(testGateways(t, "payroll-ledger")))
}
